package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/v1/about"
	MetricsRoute     = "/metrics"
	WhoAmIRoute      = "/v1/whoami"

	TemplateRoute   = "/v1/templates/{courseId}/{kind}"
	BackgroundRoute = TemplateRoute + "/background"

	ArtifactRoute      = "/v1/artifacts/{courseId}/{kind}"
	ArtifactImageRoute = ArtifactRoute + "/image"

	EligibilityRoute = "/v1/eligibility/{courseId}"

	AuditParent     = "/v1/audit/"
	ListAuditsRoute = AuditParent + "audits"

	TaskParent       = "/v1/tasks/"
	ListTasksRoute   = TaskParent
	TriggerTaskRoute = TaskParent + "{name}/trigger"
	LogsForTaskRoute = TaskParent + "{name}/logs"
)

// StudentIDParam selects the student for admin on-behalf requests.
const StudentIDParam = "student_id"
