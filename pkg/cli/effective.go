package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/platinummonkey/rolesync/pkg/httputil"
	"github.com/platinummonkey/rolesync/pkg/observability"
	"github.com/platinummonkey/rolesync/pkg/rbac"
)

func newEffectiveCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "effective",
		Description: "Show the permissions that govern a user",
		Flags:       flagSet("effective", out),
		out:         out,
	}

	conn := addConnFlags(cmd.Flags)
	userID := cmd.Flags.Int64("user-id", 0, "User id")
	systemRole := cmd.Flags.String("role", "", "User system role (admin, trainer, employee, supervisor)")
	customRole := cmd.Flags.Int64("custom-role", 0, "Custom role id assigned to the user")
	check := cmd.Flags.String("check", "", "resource:action to test, e.g. course:view")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		user, err := parseUser(*userID, *systemRole, *customRole)
		if err != nil {
			return err
		}
		a, err := conn.open()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if _, err := a.engine.Roles.LoadAll(ctx); err != nil {
			return friendly(err)
		}
		eff, err := a.engine.Resolver(nil).Resolve(ctx, user)
		if err != nil {
			return friendly(err)
		}
		return printEffective(out, eff, *check)
	}

	return cmd
}

func parseUser(id int64, systemRole string, customRole int64) (rbac.User, error) {
	role := rbac.SystemRole(strings.ToLower(strings.TrimSpace(systemRole)))
	if !role.Valid() {
		return rbac.User{}, fmt.Errorf("unknown system role %q", systemRole)
	}
	user := rbac.User{ID: id, SystemRole: role}
	if customRole != 0 {
		user.CustomRoleID = &customRole
	}
	return user, nil
}

func parseCheck(check string) (resource, action string, err error) {
	resource, action, ok := strings.Cut(check, ":")
	if !ok || resource == "" || action == "" {
		return "", "", fmt.Errorf("check must look like resource:action, got %q", check)
	}
	return resource, action, nil
}

func printEffective(out io.Writer, eff rbac.Effective, check string) error {
	switch eff.Source {
	case rbac.SourceCustomRole:
		fmt.Fprintf(out, "source: custom role %d (%s)\n", eff.Role.ID, eff.Role.DisplayName)
	default:
		fmt.Fprintf(out, "source: system role %s\n", eff.SystemRole)
	}
	for _, p := range eff.Permissions {
		fmt.Fprintf(out, "  %s\n", p.Key())
	}

	if check == "" {
		return nil
	}
	resource, action, err := parseCheck(check)
	if err != nil {
		return err
	}
	verdict := "denied"
	if eff.Allows(resource, action) {
		verdict = "allowed"
	}
	fmt.Fprintf(out, "%s: %s\n", check, verdict)
	return nil
}

// effectiveHandler serves GET /effective?user_id=&role=&custom_role_id=&check=.
func effectiveHandler(resolve func(context.Context, rbac.User) (rbac.Effective, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParseQueryInt64OrError(w, r, "user_id", 0)
		if !ok {
			return
		}
		custom, ok := httputil.ParseQueryInt64OrError(w, r, "custom_role_id", 0)
		if !ok {
			return
		}
		user, err := parseUser(id, httputil.ParseQueryString(r, "role", ""), custom)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}

		eff, err := resolve(r.Context(), user)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("resolve failed")
			httputil.WriteBadGateway(w, rbac.UserMessage(err))
			return
		}

		resp := struct {
			rbac.Effective
			Allowed *bool `json:"allowed,omitempty"`
		}{Effective: eff}
		if check := httputil.ParseQueryString(r, "check", ""); check != "" {
			resource, action, err := parseCheck(check)
			if err != nil {
				httputil.WriteBadRequest(w, err.Error())
				return
			}
			allowed := eff.Allows(resource, action)
			resp.Allowed = &allowed
		}

		_ = httputil.WriteSuccess(w, resp)
	}
}
