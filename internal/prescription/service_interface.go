package prescription

import (
	"context"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/pagination"
)

// ServiceInterface defines the business operations exposed over HTTP.
type ServiceInterface interface {
	Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error)
	History(ctx context.Context, principal *auth.Principal, filter HistoryFilter, params pagination.Params) (*HistoryResponse, error)
	GetVisit(ctx context.Context, principal *auth.Principal, serial string) (*Visit, error)
}
