package fault

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/OneClickTag/tracksync/internal/core/domain"
)

// quotaPatterns are matched case-insensitively. A message matching both a
// quota and a retryable pattern is always quota.
var quotaPatterns = []string{
	"429",
	"resource exhausted",
	"resource_exhausted",
	"rate limit",
	"ratelimitexceeded",
	"quota exceeded",
	"too many requests",
}

// retryablePatterns are matched case-sensitively, so upstream spellings that
// differ by case are listed individually.
var retryablePatterns = []string{
	"500",
	"502",
	"503",
	"504",
	"unavailable",
	"UNAVAILABLE",
	"Unavailable",
	"deadline exceeded",
	"DEADLINE_EXCEEDED",
	"concurrent modification",
	"CONCURRENT_MODIFICATION",
	"duplicate key value violates unique constraint",
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"i/o timeout",
	"no such host",
	"EOF",
	"sync incomplete",
	"retry should resolve this",
}

// Classify assigns an error message to exactly one class. The match is pure
// substring inspection so heterogeneous upstream error text is tolerated.
func Classify(message string) domain.ErrorClass {
	lower := strings.ToLower(message)
	for _, p := range quotaPatterns {
		if strings.Contains(lower, p) {
			return domain.ErrorClassQuota
		}
	}
	for _, p := range retryablePatterns {
		if strings.Contains(message, p) {
			return domain.ErrorClassRetryable
		}
	}
	return domain.ErrorClassPermanent
}

// ClassifyError classifies an error value. gRPC status codes are checked
// first because the upstream Google APIs surface them directly; everything
// else falls back to message-text classification.
func ClassifyError(err error) domain.ErrorClass {
	if err == nil {
		return domain.ErrorClassPermanent
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return domain.ErrorClassQuota
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return domain.ErrorClassRetryable
		}
	}

	return Classify(err.Error())
}
