package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/platinummonkey/rolesync/pkg/rbac"
)

// roleFlags are the editable role attributes shared by create and update.
type roleFlags struct {
	name        *string
	displayName *string
	description *string
	inactive    *bool
	permissions *string
	resources   *string
	retries     *int
}

func addRoleFlags(fs *flag.FlagSet) *roleFlags {
	return &roleFlags{
		name:        fs.String("name", "", "Technical name (letters, digits, '_', '-' or '.')"),
		displayName: fs.String("display-name", "", "Name shown to users"),
		description: fs.String("description", "", "Description"),
		inactive:    fs.Bool("inactive", false, "Mark the role inactive"),
		permissions: fs.String("permissions", "", "Comma separated permission ids"),
		resources:   fs.String("resources", "", "Comma separated resource types to select entirely"),
		retries:     fs.Int("retries", 1, "Times to retry the permission assignment after a partial failure"),
	}
}

// apply copies the flags that were set onto fields.
func (f *roleFlags) apply(fields rbac.RoleFields, set map[string]bool) rbac.RoleFields {
	if set["name"] {
		fields.Name = *f.name
	}
	if set["display-name"] {
		fields.DisplayName = *f.displayName
	}
	if set["description"] {
		fields.Description = *f.description
	}
	if set["inactive"] {
		fields.IsActive = !*f.inactive
	}
	return fields
}

// selectResources selects every catalog permission of the named resource types.
func selectResources(ctx context.Context, a *app, session *rbac.Session, resources []string) error {
	if len(resources) == 0 {
		return nil
	}
	perms, err := a.engine.Catalog.LoadAll(ctx)
	if err != nil {
		return friendly(err)
	}
	groups := map[string]rbac.ResourceGroup{}
	for _, g := range rbac.GroupByResource(perms) {
		groups[g.ResourceType] = g
	}
	for _, resource := range resources {
		group, ok := groups[resource]
		if !ok {
			return fmt.Errorf("unknown resource type %q", resource)
		}
		if err := session.SelectGroup(group, true); err != nil {
			return err
		}
	}
	return nil
}

// submit sends the session and, after a partial failure, retries the permission step.
func submit(ctx context.Context, out io.Writer, session *rbac.Session, retries int) (rbac.Role, error) {
	role, err := session.Submit(ctx)
	for attempt := 0; err != nil && attempt < retries; attempt++ {
		var partial *rbac.PartialFailureError
		if !errors.As(err, &partial) {
			break
		}
		fmt.Fprintln(out, rbac.UserMessage(err))
		role, err = session.Submit(ctx)
	}
	return role, friendly(err)
}

func newCreateCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create a custom role and assign its permissions",
		Flags:       flagSet("create", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	rf := addRoleFlags(cmd.Flags)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		a, err := conn.open()
		if err != nil {
			return err
		}
		ids, err := parseIDs(*rf.permissions)
		if err != nil {
			return err
		}

		ctx := context.Background()
		session := a.engine.BeginCreate()
		if err := session.SetFields(rf.apply(session.Fields(), visited(cmd.Flags))); err != nil {
			return err
		}
		for _, id := range ids {
			if err := session.Toggle(id, true); err != nil {
				return err
			}
		}
		if err := selectResources(ctx, a, session, splitList(*rf.resources)); err != nil {
			return err
		}

		role, err := submit(ctx, out, session, *rf.retries)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created role %d (%s) with %d permissions\n", role.ID, role.Name, len(session.Draft()))
		return nil
	}

	return cmd
}

func newUpdateCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "update",
		Description: "Update a role and replace its permissions",
		Flags:       flagSet("update", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	id := cmd.Flags.Int64("id", 0, "Role id")
	rf := addRoleFlags(cmd.Flags)
	add := cmd.Flags.String("add", "", "Comma separated permission ids to add")
	remove := cmd.Flags.String("remove", "", "Comma separated permission ids to remove")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == 0 {
			return fmt.Errorf("id is required")
		}
		a, err := conn.open()
		if err != nil {
			return err
		}
		set := visited(cmd.Flags)

		ctx := context.Background()
		role, err := a.findRole(ctx, *id)
		if err != nil {
			return err
		}

		session, err := a.engine.BeginEdit(ctx, role)
		if err != nil {
			return friendly(err)
		}
		if err := session.SetFields(rf.apply(session.Fields(), set)); err != nil {
			return err
		}

		if set["permissions"] {
			ids, err := parseIDs(*rf.permissions)
			if err != nil {
				return err
			}
			if err := toggleAll(session, session.Draft(), false); err != nil {
				return err
			}
			if err := toggleAll(session, ids, true); err != nil {
				return err
			}
		}
		for _, change := range []struct {
			list     string
			selected bool
		}{{*add, true}, {*remove, false}} {
			ids, err := parseIDs(change.list)
			if err != nil {
				return err
			}
			if err := toggleAll(session, ids, change.selected); err != nil {
				return err
			}
		}
		if err := selectResources(ctx, a, session, splitList(*rf.resources)); err != nil {
			return err
		}

		updated, err := submit(ctx, out, session, *rf.retries)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "updated role %d (%s) with %d permissions\n", updated.ID, updated.Name, len(session.Draft()))
		return nil
	}

	return cmd
}

func toggleAll(session *rbac.Session, ids []int64, selected bool) error {
	for _, id := range ids {
		if err := session.Toggle(id, selected); err != nil {
			return err
		}
	}
	return nil
}

func newDeleteCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "delete",
		Description: "Delete a custom role",
		Flags:       flagSet("delete", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	id := cmd.Flags.Int64("id", 0, "Role id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == 0 {
			return fmt.Errorf("id is required")
		}
		a, err := conn.open()
		if err != nil {
			return err
		}

		ctx := context.Background()
		role, err := a.findRole(ctx, *id)
		if err != nil {
			return err
		}
		if err := a.engine.DeleteRole(ctx, role); err != nil {
			return friendly(err)
		}
		fmt.Fprintf(out, "deleted role %d (%s)\n", role.ID, role.Name)
		return nil
	}

	return cmd
}
