package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/worksim/api/internal/auth"
	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/config"
	"github.com/worksim/api/internal/handler"
	"github.com/worksim/api/internal/logger"
	"github.com/worksim/api/internal/middleware"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/internal/store"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
	otherUserID   = "someone-else"
)

const rubricResponse = `{
  "overallScore": 3.4,
  "overallSummary": "Shipped the fix and kept the team informed.",
  "dimensionScores": [
    {"dimensionSlug": "communication", "score": 3.5, "rationale": "clear status updates", "greenFlags": ["asked clarifying questions"], "redFlags": [], "observableBehaviors": [{"timestamp": "02:15", "behavior": "messaged the PM"}]},
    {"dimensionSlug": "problem_solving", "score": 3.2, "rationale": "reproduced before fixing", "greenFlags": [], "redFlags": [], "observableBehaviors": []}
  ],
  "topStrengths": [{"dimension": "communication", "description": "Proactive updates"}],
  "growthAreas": [{"dimension": "problem_solving", "description": "Write the test first"}],
  "detectedRedFlags": [],
  "evaluationVersion": "rubric-v1"
}`

// testApp holds the app and the seeded fixtures
type testApp struct {
	app          *fiber.App
	store        *store.MemoryStore
	analyzer     *stubAnalyzer
	queue        *recordingQueue
	notifier     *stubNotifier
	assessmentID string
	coworkerID   string
}

type stubAnalyzer struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (a *stubAnalyzer) GenerateContent(context.Context, string, *client.Media) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.response, a.err
}

func (a *stubAnalyzer) IsConfigured() bool { return true }

func (a *stubAnalyzer) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *stubAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type stubPRs struct{}

func (stubPRs) CleanupPRAfterAssessment(context.Context, string) (*model.PRCleanupResult, error) {
	return &model.PRCleanupResult{Success: true, Action: model.PRActionClosed}, nil
}

func (stubPRs) FetchPRCIStatus(context.Context, string) (*model.PRCIStatus, error) {
	return &model.PRCIStatus{State: model.CIStatusSuccess}, nil
}

func (stubPRs) IsConfigured() bool { return true }

// recordingQueue stands in for asynq; tests drive evaluation explicitly
type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) EnqueueEvaluation(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *recordingQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []client.ReportEmail
}

func (n *stubNotifier) SendReportEmail(_ context.Context, email client.ReportEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return nil
}

func (n *stubNotifier) IsConfigured() bool { return true }

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// setupApp wires the real services and routes onto an in-memory store with
// a WORKING assessment owned by testUserID
func setupApp(t *testing.T) *testApp {
	t.Helper()

	log := logger.Discard()
	validate := validator.New()
	st := store.NewMemoryStore()

	st.PutUser(model.User{ID: testUserID, Email: "test@example.com", Name: "Test Candidate"})
	st.PutUser(model.User{ID: otherUserID, Email: "other@example.com", Name: "Other"})
	scenarioID := st.PutScenario(model.Scenario{Name: "Checkout bug", RoleFamily: "engineering"})
	coworkerID := st.PutCoworker(model.Coworker{ScenarioID: scenarioID, Name: "Priya", Role: "Product Manager"})

	startedAt := time.Now().UTC().Add(-90 * time.Minute)
	prURL := "https://github.com/acme/checkout/pull/12"
	assessmentID := st.PutAssessment(model.Assessment{
		UserID:     testUserID,
		ScenarioID: scenarioID,
		Status:     model.AssessmentStatusWorking,
		StartedAt:  startedAt,
		PRURL:      &prURL,
	})
	st.PutRecording(model.Recording{
		AssessmentID: assessmentID,
		Type:         model.RecordingTypeScreen,
		StorageURL:   "https://cdn.example.com/recordings/session.webm",
		StartTime:    startedAt.Add(10 * time.Minute),
	})
	st.PutConversation(model.Conversation{
		AssessmentID: assessmentID,
		CoworkerID:   &coworkerID,
		Type:         model.ConversationTypeText,
		Transcript: []model.ChatMessage{
			{Role: model.MessageRoleUser, Text: "Is the discount applied before tax?", Timestamp: startedAt.Add(20 * time.Minute)},
			{Role: model.MessageRoleModel, Text: "After tax, that is the bug.", Timestamp: startedAt.Add(21 * time.Minute)},
		},
	})

	analyzer := &stubAnalyzer{response: rubricResponse}
	queue := &recordingQueue{}
	notifier := &stubNotifier{}

	videoService := service.NewVideoService(st, analyzer, nil, queue, nil, validate, service.VideoServiceConfig{
		EvaluationTimeout: 5 * time.Second,
	}, log)
	photoService := service.NewPhotoService(st, nil, nil, log)
	finalizeService := service.NewFinalizeService(st, stubPRs{}, videoService, photoService, service.FinalizeTimeouts{
		PRCleanup:    time.Second,
		VideoKickoff: time.Second,
		ProfilePhoto: time.Second,
	}, log)
	reportService := service.NewReportService(st, videoService, stubPRs{}, notifier, "https://app.example.com", log)
	memoryService := service.NewMemoryService(st, nil, 10, 2000, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler(log),
		BodyLimit:    1 * 1024 * 1024,
	})

	routes := &handler.Routes{
		Auth:        handler.NewAuthHandler(nil, testJWTSecret),
		Assessments: handler.NewAssessmentHandler(finalizeService, reportService, validate, log),
		Videos:      handler.NewVideoHandler(videoService, log),
		Memory:      handler.NewMemoryHandler(memoryService, log),
		APIAuth:     middleware.NewAuthMiddleware(nil, testJWTSecret).Authenticate(),
		// No redis: the limiter lets every request through
		Limiter: middleware.NewRateLimiter(nil, log),
		Limits:  config.RateLimitConfig{FinalizePerHour: 10000, ReportPerHour: 10000},
		Services: func() fiber.Map {
			return fiber.Map{"database": false, "redis": false, "auth": true}
		},
	}
	routes.Register(app)

	return &testApp{
		app:          app,
		store:        st,
		analyzer:     analyzer,
		queue:        queue,
		notifier:     notifier,
		assessmentID: assessmentID,
		coworkerID:   coworkerID,
	}
}

// generateToken issues a session token for testUserID.
func generateToken(t *testing.T) string {
	t.Helper()
	return generateTokenFor(t, testUserID)
}

func generateTokenFor(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueSessionToken(auth.Identity{
		UserID: userID,
		Email:  userID + "@example.com",
		Name:   "Test",
	}, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request authenticated as testUserID.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequestAs(t, app, testUserID, method, path, body)
}

func doRequestAs(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateTokenFor(t, userID),
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode extracts error.code from an error response body.
func errorCode(body map[string]interface{}) string {
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := e["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
