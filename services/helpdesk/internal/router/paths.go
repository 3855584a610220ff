package router

// Path constants centralizing HTTP routes.
const (
	PathHealth        = "/health"
	PathReady         = "/ready"
	PathDomainMetrics = "/metrics/domain"

	PathTickets        = "/v1/tickets"
	PathTicketID       = "/v1/tickets/:id"
	PathTicketEvents   = "/v1/tickets/:id/events"
	PathTicketComments = "/v1/tickets/:id/comments"
	PathTicketCancel   = "/v1/tickets/:id/cancel"

	PathChat       = "/v1/chat"
	PathFAQSearch  = "/v1/faq/search"
	PathCategories = "/v1/categories"
	PathCourses    = "/v1/courses"
	PathOffices    = "/v1/offices"

	PathAdminTicketStatus  = "/v1/admin/tickets/:id/status"
	PathAdminTicketDequeue = "/v1/admin/tickets/:id/dequeue"
	PathAdminTicketEnqueue = "/v1/admin/tickets/:id/enqueue"
	PathAdminStatistics    = "/v1/admin/statistics"

	PathAdminCategories = "/v1/admin/categories"
	PathAdminCategory   = "/v1/admin/categories/:name"
	PathAdminCourses    = "/v1/admin/courses"
	PathAdminCourse     = "/v1/admin/courses/:name"
	PathAdminOffices    = "/v1/admin/offices"
	PathAdminOffice     = "/v1/admin/offices/:id"
	PathAdminMapping    = "/v1/admin/category-office-mapping"

	PathAdminQueues        = "/v1/admin/queues"
	PathAdminQueue         = "/v1/admin/queues/:officeId"
	PathAdminQueueOrder    = "/v1/admin/queues/:officeId/order"
	PathAdminQueueRenumber = "/v1/admin/queues/:officeId/renumber"

	PathAdminFAQ    = "/v1/admin/faq"
	PathAdminFAQID  = "/v1/admin/faq/:id"
	PathAdminKBInfo = "/v1/admin/kb/info"
)
