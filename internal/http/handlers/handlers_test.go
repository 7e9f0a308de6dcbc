package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/data/reporting"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
)

type recordingRouter struct {
	mu      sync.Mutex
	batches [][]services.Event
	err     error
}

func (r *recordingRouter) Dispatch(ctx context.Context, ev services.Event) error {
	return r.DispatchBatch(ctx, []services.Event{ev})
}

func (r *recordingRouter) DispatchBatch(ctx context.Context, events []services.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	return r.err
}

type stubScheduler struct {
	trigger string
	res     services.SweepResult
	err     error
}

func (s *stubScheduler) RunDueSweep(ctx context.Context, now time.Time, trigger string) (services.SweepResult, error) {
	s.trigger = trigger
	return s.res, s.err
}

type stubFollowers struct {
	res services.FollowerSyncResult
	err error
}

func (s stubFollowers) Run(ctx context.Context) (services.FollowerSyncResult, error) { return s.res, s.err }

type stubFunnel struct {
	orders []int
}

func (s *stubFunnel) Funnel(ctx context.Context, surveyID uuid.UUID) (*reporting.Funnel, error) {
	return &reporting.Funnel{SurveyID: surveyID, Started: 4, Completed: 2, Submitted: 2}, nil
}

func (s *stubFunnel) Distribution(ctx context.Context, surveyID uuid.UUID, orders []int) ([]reporting.ValueCount, error) {
	s.orders = orders
	return []reporting.ValueCount{{OrderIndex: 7, Value: "yes", Count: 2}}, nil
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const webhookPayload = `{
  "destination": "Uchannel",
  "events": [
    {"type": "follow", "timestamp": 1715333400000, "webhookEventId": "01HFOLLOW",
     "deliveryContext": {"isRedelivery": false}, "replyToken": "rt1",
     "source": {"type": "user", "userId": "U1"}},
    {"type": "message", "webhookEventId": "01HMSG", "replyToken": "rt2",
     "source": {"type": "user", "userId": "U1"},
     "message": {"type": "text", "id": "1", "text": "東京大学"}},
    {"type": "message", "webhookEventId": "01HSTICKER",
     "source": {"type": "user", "userId": "U2"},
     "message": {"type": "sticker", "id": "2"}},
    {"type": "postback", "webhookEventId": "01HPB", "replyToken": "rt3",
     "source": {"type": "user", "userId": "U3"},
     "postback": {"data": "{\"action\":\"start_survey\"}"}}
  ]
}`

func TestWebhookMapsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := &recordingRouter{}
	r := gin.New()
	r.POST("/webhook", NewWebhookHandler(logger.NewNop(), router, 0).Receive)

	rec := serve(r, http.MethodPost, "/webhook", webhookPayload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.Len(t, router.batches, 1)
	evs := router.batches[0]
	require.Len(t, evs, 4)

	assert.Equal(t, services.Event{
		ID: "01HFOLLOW", Type: services.EventFollow, SourceID: "U1", ReplyToken: "rt1",
		Timestamp: time.UnixMilli(1715333400000).UTC(),
	}, evs[0])
	assert.Equal(t, "東京大学", evs[1].Text)
	assert.Equal(t, services.EventMessage, evs[2].Type)
	assert.Empty(t, evs[2].Text, "non-text messages carry no text")
	assert.Equal(t, `{"action":"start_survey"}`, evs[3].Postback)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := &recordingRouter{err: errors.New("store down")}
	r := gin.New()
	r.POST("/webhook", NewWebhookHandler(logger.NewNop(), router, time.Second).Receive)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/webhook", webhookPayload).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/webhook", "not json").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/webhook", `{"events":[]}`).Code)
	assert.Len(t, router.batches, 1, "empty and malformed bodies dispatch nothing")
}

func TestOpsSweep(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sched := &stubScheduler{res: services.SweepResult{Due: 3, Sent: 2, Failed: 1}}
	r := gin.New()
	r.POST("/internal/sweep", NewOpsHandler(sched, nil, nil).Sweep)

	rec := serve(r, http.MethodPost, "/internal/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sweep":{"due":3,"sent":2,"completed":0,"failed":1}}`, rec.Body.String())
	assert.Equal(t, services.TriggerManual, sched.trigger)

	sched.err = errors.New("query failed")
	rec = serve(r, http.MethodPost, "/internal/sweep", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "query failed")
}

func TestOpsFollowerSync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	ok := NewOpsHandler(nil, stubFollowers{res: services.FollowerSyncResult{Fetched: 2, Inserted: 1}}, nil)
	failing := NewOpsHandler(nil, stubFollowers{err: errors.New("line 500")}, nil)
	r.POST("/ok", ok.SyncFollowers)
	r.POST("/failing", failing.SyncFollowers)
	r.POST("/missing", NewOpsHandler(nil, nil, nil).SyncFollowers)

	rec := serve(r, http.MethodPost, "/ok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"followers":{"fetched":2,"inserted":1,"reactivated":0,"blocked":0}}`, rec.Body.String())
	assert.Equal(t, http.StatusBadGateway, serve(r, http.MethodPost, "/failing", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/missing", "").Code)
}

func TestOpsSurveyFunnel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	funnel := &stubFunnel{}
	r := gin.New()
	r.GET("/internal/reports/surveys/:id/funnel", NewOpsHandler(nil, nil, funnel).SurveyFunnel)
	id := uuid.New()

	rec := serve(r, http.MethodGet, "/internal/reports/surveys/"+id.String()+"/funnel?orders=6,7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Funnel       reporting.Funnel       `json:"funnel"`
		Distribution []reporting.ValueCount `json:"distribution"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body.Funnel.SurveyID)
	assert.Equal(t, 4, body.Funnel.Started)
	assert.Len(t, body.Distribution, 1)
	assert.Equal(t, []int{6, 7}, funnel.orders)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/internal/reports/surveys/nope/funnel", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/internal/reports/surveys/"+id.String()+"/funnel?orders=a", "").Code)
}

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/up", NewHealthHandler(func(context.Context) error { return nil }).Ready)
	r.GET("/down", NewHealthHandler(func(context.Context) error { return errors.New("no db") }).Ready)
	r.GET("/healthcheck", NewHealthHandler(nil).HealthCheck)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/up", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/down", "").Code)
	assert.Equal(t, "ok", serve(r, http.MethodGet, "/healthcheck", "").Body.String())
}
