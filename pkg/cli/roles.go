package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/platinummonkey/rolesync/pkg/rbac"
)

func newRolesCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "roles",
		Description: "List roles with their permission counts",
		Flags:       flagSet("roles", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	search := cmd.Flags.String("search", "", "Filter by name or display name")
	page := cmd.Flags.Int("page", 1, "Page number, starting at 1")
	pageSize := cmd.Flags.Int("page-size", 0, "Roles per page (default ROLESYNC_PAGE_SIZE)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		a, err := conn.open()
		if err != nil {
			return err
		}
		size := *pageSize
		if size <= 0 {
			size = a.cfg.Sync.PageSize
		}
		return listRoles(context.Background(), out, a, *search, *page, size)
	}

	return cmd
}

func listRoles(ctx context.Context, out io.Writer, a *app, search string, page, pageSize int) error {
	if err := a.engine.Reload(ctx); err != nil {
		return friendly(err)
	}

	filtered := rbac.FilterRoles(a.engine.Roles.Roles(), search)
	pages := rbac.PageCount(len(filtered), pageSize)
	if page < 1 {
		page = 1
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDISPLAY NAME\tSYSTEM\tACTIVE\tPERMISSIONS")
	for _, role := range rbac.Paginate(filtered, page-1, pageSize) {
		count := "-"
		if perms, ok := a.engine.Assignments.Get(role.ID); ok {
			count = fmt.Sprint(len(perms))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			role.ID, role.Name, role.DisplayName, yesNo(role.IsSystemRole), yesNo(role.IsActive), count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "page %d/%d, %d roles\n", page, pages, len(filtered))
	return nil
}

func newPermissionsCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "permissions",
		Description: "List the permission catalog grouped by resource",
		Flags:       flagSet("permissions", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	search := cmd.Flags.String("search", "", "Filter by resource, label, action or description")
	roleID := cmd.Flags.Int64("role", 0, "Mark the permissions assigned to this role")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		a, err := conn.open()
		if err != nil {
			return err
		}
		return listPermissions(context.Background(), out, a, *search, *roleID)
	}

	return cmd
}

func listPermissions(ctx context.Context, out io.Writer, a *app, search string, roleID int64) error {
	perms, err := a.engine.Catalog.LoadAll(ctx)
	if err != nil {
		return friendly(err)
	}

	var selected []int64
	if roleID != 0 {
		assigned, err := a.engine.Assignments.LoadFor(ctx, roleID)
		if err != nil {
			return friendly(err)
		}
		selected = rbac.PermissionIDs(assigned)
	}

	label := a.engine.Catalog.DisplayNameFor
	groups := rbac.GroupByResource(rbac.SearchPermissions(perms, search, label))
	for _, group := range groups {
		header := fmt.Sprintf("%s (%s)", label(group.ResourceType), group.ResourceType)
		if roleID != 0 {
			header += " [" + rbac.DraftCoverage(selected, group).String() + "]"
		}
		fmt.Fprintln(out, header)

		for _, p := range group.Permissions {
			mark := ""
			if roleID != 0 {
				mark = "[ ] "
				if containsID(selected, p.ID) {
					mark = "[x] "
				}
			}
			line := fmt.Sprintf("  %s%d %s", mark, p.ID, p.Key())
			if p.Description != "" {
				line += "  " + p.Description
			}
			fmt.Fprintln(out, line)
		}
	}

	fmt.Fprintf(out, "%d permissions in %d resources\n", countPermissions(groups), len(groups))
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func countPermissions(groups []rbac.ResourceGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Permissions)
	}
	return n
}
