// Package rbac keeps a local, eventually consistent mirror of a remote role authority and
// performs role mutations against it.
//
// # Components
//
//	Catalog        - every permission the authority knows, loaded once per session
//	RoleStore      - the authority's role list
//	AssignmentMap  - role id to assigned permissions, refreshed concurrently
//	Engine         - create, update and delete roles; reloads the stores after each mutation
//	Session        - the draft of one create or edit form and its submit state
//	Resolver       - effective permissions of a user (custom role or system role, never both)
//	Notifier       - typed publish/subscribe of change events, plus remote broadcasters
//	Refresher      - scheduled reloads that publish when assignments changed
//
// # Replacing permissions
//
// The authority has no atomic replace. UpdateRole saves the fields, clears every assignment
// of the role and then bulk-assigns the new set. A failure after the fields were saved is
// reported as a *PartialFailureError; when the assignment step fails the role is left with
// no permissions and a Session retries only that step on the next Submit.
//
// # Errors
//
// Authority failures arrive as *RemoteError. The engine reports them as *FetchError when the
// authority was unreachable, *ForbiddenError on a 403 and *RemoteError otherwise. Use
// errors.Is with ErrValidation, ErrRemote, ErrFetch, ErrForbidden and ErrPartialFailure, and
// UserMessage for the text shown to the user.
//
// # Usage
//
//	engine := rbac.NewEngine(client, rbac.WithLogger(logger), rbac.WithNotifier(notifier))
//	if err := engine.Bootstrap(ctx); err != nil {
//		logger.WithError(err).Warn("initial load incomplete")
//	}
//
//	s, err := engine.BeginEdit(ctx, role)
//	if err != nil {
//		return err
//	}
//	_ = s.Toggle(permissionID, true)
//	if _, err := s.Submit(ctx); err != nil {
//		fmt.Println(rbac.UserMessage(err))
//	}
package rbac
