package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/yungbote/lineflow-backend/internal/clients/line"
	httpH "github.com/yungbote/lineflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lineflow-backend/internal/http/middleware"
	"github.com/yungbote/lineflow-backend/internal/pkg/authtoken"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
)

type nopRouter struct{ events int }

func (r *nopRouter) Dispatch(ctx context.Context, ev services.Event) error { return nil }
func (r *nopRouter) DispatchBatch(ctx context.Context, events []services.Event) error {
	r.events += len(events)
	return nil
}

type nopScheduler struct{}

func (nopScheduler) RunDueSweep(ctx context.Context, now time.Time, trigger string) (services.SweepResult, error) {
	return services.SweepResult{}, nil
}

func TestRouterWiring(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	events := &nopRouter{}
	r := NewRouter(RouterConfig{
		Log:            log,
		ChannelSecret:  "chan-secret",
		AuthMiddleware: httpMW.NewAuthMiddleware(log, "ops-secret"),
		WebhookHandler: httpH.NewWebhookHandler(log, events, time.Second),
		OpsHandler:     httpH.NewOpsHandler(nopScheduler{}, nil, nil),
		HealthHandler:  httpH.NewHealthHandler(nil),
	})

	do := func(method, path, body string, headers map[string]string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthcheck", "", nil))
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/metrics", "", nil), "metrics disabled")

	body := `{"events":[{"type":"follow","webhookEventId":"e1","source":{"userId":"U1"}}]}`
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/webhook", body, nil))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/webhook", body, map[string]string{
		line.SignatureHeader: line.Sign("chan-secret", []byte(body)),
	}))
	assert.Equal(t, 1, events.events)

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/internal/sweep", "", nil))
	tok, err := authtoken.Issue("ops-secret", "test", time.Minute, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/internal/sweep", "", map[string]string{"Authorization": "Bearer " + tok}))
}
