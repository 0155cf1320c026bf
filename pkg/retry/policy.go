package retry

// Policy decides whether a failed fetch gets another attempt as a fresh
// request. It holds no state; attempt counts travel with the request.
type Policy struct {
	maxRetries     int
	retryStatuses  map[int]struct{}
	priorityAdjust int
}

func NewPolicy(maxRetries int, retryStatuses []int, priorityAdjust int) Policy {
	statuses := make(map[int]struct{}, len(retryStatuses))
	for _, s := range retryStatuses {
		statuses[s] = struct{}{}
	}
	return Policy{
		maxRetries:     maxRetries,
		retryStatuses:  statuses,
		priorityAdjust: priorityAdjust,
	}
}

// DefaultRetryStatuses are the HTTP statuses retried unless configured otherwise.
func DefaultRetryStatuses() []int {
	return []int{500, 502, 503, 504, 522, 524, 408, 429}
}

// Allows reports whether a request that already had `attempts` retries may get one more.
func (p Policy) Allows(attempts int) bool {
	return attempts < p.maxRetries
}

// RetryStatus reports whether a response status should be retried.
func (p Policy) RetryStatus(status int) bool {
	_, ok := p.retryStatuses[status]
	return ok
}

func (p Policy) MaxRetries() int {
	return p.maxRetries
}

// PriorityAdjust is added to a request's priority on each retry.
func (p Policy) PriorityAdjust() int {
	return p.priorityAdjust
}
