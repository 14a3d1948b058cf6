package rbac

// BuiltInPermissions maps each system role to the fixed permission set it carries when no
// custom role overrides it. Built-in permissions have no catalog id.
type BuiltInPermissions map[SystemRole][]Permission

// For returns a copy of the built-in set for role. Unknown roles get an empty set.
func (b BuiltInPermissions) For(role SystemRole) []Permission {
	perms := b[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// DefaultBuiltInPermissions returns the built-in mapping for the four system roles.
func DefaultBuiltInPermissions() BuiltInPermissions {
	return BuiltInPermissions{
		SystemRoleAdmin: {
			builtin(Wildcard, Wildcard),
		},
		SystemRoleTrainer: {
			builtin(ResourceCourse, ActionView),
			builtin(ResourceCourse, ActionCreate),
			builtin(ResourceCourse, ActionUpdate),
			builtin(ResourceEvaluation, ActionView),
			builtin(ResourceEvaluation, ActionCreate),
			builtin(ResourceEvaluation, ActionUpdate),
			builtin(ResourceSurvey, ActionView),
			builtin(ResourceSurvey, ActionCreate),
			builtin(ResourceAttendance, ActionView),
			builtin(ResourceAttendance, ActionUpdate),
			builtin(ResourceEnrollment, ActionView),
			builtin(ResourceCertificate, ActionView),
			builtin(ResourceReport, ActionView),
			builtin(ResourceProgress, ActionView),
		},
		SystemRoleSupervisor: {
			builtin(ResourceUser, ActionView),
			builtin(ResourceWorker, ActionView),
			builtin(ResourceWorker, ActionUpdate),
			builtin(ResourceCourse, ActionView),
			builtin(ResourceAttendance, ActionView),
			builtin(ResourceReport, ActionView),
			builtin(ResourceReport, ActionExport),
			builtin(ResourceSeguimiento, ActionView),
			builtin(ResourceOccupationalExam, ActionView),
			builtin(ResourceProgress, ActionView),
		},
		SystemRoleEmployee: {
			builtin(ResourceCourse, ActionView),
			builtin(ResourceEvaluation, ActionSubmit),
			builtin(ResourceSurvey, ActionSubmit),
			builtin(ResourceCertificate, ActionDownload),
			builtin(ResourceAttendance, ActionView),
			builtin(ResourceProgress, ActionView),
		},
	}
}

func builtin(resourceType, action string) Permission {
	return Permission{ResourceType: resourceType, Action: action, IsActive: true}
}
