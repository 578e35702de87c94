package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/suPer8Hu/appgen/internal/ai"
	"github.com/suPer8Hu/appgen/internal/db"
	"github.com/suPer8Hu/appgen/internal/prompt"
	"gorm.io/gorm"
)

const (
	testHelperModel = "helper-8b"
	testVisionModel = "vision-90b"
	testSelfHosted  = "self-llm"
	testPrimary     = "primary-model-x"
)

type recordedCall struct {
	backend  ai.Backend
	model    string
	messages []ai.Message
	opts     ai.CallOptions
	stream   bool
}

// recordingProvider answers each stage by looking at the prompt it was sent.
type recordingProvider struct {
	mu       sync.Mutex
	calls    []recordedCall
	failOn   string
	body     func() io.ReadCloser
	example  string
	plan     string
	describe string
}

func (p *recordingProvider) record(c recordedCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

func (p *recordingProvider) Calls() []recordedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedCall(nil), p.calls...)
}

func (p *recordingProvider) reply(msgs []ai.Message) (string, string) {
	first := msgs[0].Content
	switch {
	case strings.Contains(first, "succinct title"):
		return "title", "  Pomodoro Timer \n"
	case strings.Contains(first, "most similar example"):
		return "example", p.example
	case strings.Contains(first, "software architect"):
		return "architect", p.plan
	case strings.HasPrefix(first, "Describe the attached screenshot"):
		return "screenshot", p.describe
	}
	return "unknown", ""
}

type boundProvider struct {
	p     *recordingProvider
	route ai.Route
}

func (b *boundProvider) Chat(ctx context.Context, msgs []ai.Message, opts ...ai.CallOption) (string, error) {
	o := ai.CallOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	b.p.record(recordedCall{backend: b.route.Backend, model: b.route.Model, messages: append([]ai.Message(nil), msgs...), opts: o})
	stage, out := b.p.reply(msgs)
	if stage == b.p.failOn {
		return "", &ai.UpstreamError{Backend: b.route.Backend, Status: 500, Message: "boom"}
	}
	return out, nil
}

func (b *boundProvider) OpenStream(ctx context.Context, msgs []ai.Message, opts ...ai.CallOption) (io.ReadCloser, error) {
	o := ai.CallOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	b.p.record(recordedCall{backend: b.route.Backend, model: b.route.Model, messages: append([]ai.Message(nil), msgs...), opts: o, stream: true})
	return b.p.body(), nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	gdb, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb, Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

const helloStream = `data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n" +
	`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n" +
	"data: [DONE]\n"

func newTestService(t *testing.T) (*Service, *Repo, *recordingProvider, *gorm.DB) {
	t.Helper()
	gdb := openTestDB(t)
	repo := NewRepo(gdb)

	prov := &recordingProvider{
		example:  "pomodoro timer",
		plan:     "ARCH PLAN",
		describe: "A red button.",
		body:     func() io.ReadCloser { return io.NopCloser(strings.NewReader(helloStream)) },
	}
	reg := ai.NewRegistry()
	for _, b := range []ai.Backend{ai.BackendSelfHosted, ai.BackendProxy, ai.BackendDirect} {
		reg.Register(b, func(ctx context.Context, route ai.Route) (ai.Provider, error) {
			return &boundProvider{p: prov, route: route}, nil
		})
	}
	router := ai.NewRouter(ai.RouterConfig{
		SelfHostedModel:    testSelfHosted,
		SelfHostedEndpoint: "http://self.local",
		SelfHostedAPIKey:   "self-key",
		PrimaryAPIKey:      "primary-key",
	})
	svc := NewService(repo, router, reg, Options{
		HelperModel: testHelperModel,
		VisionModel: testVisionModel,
	})
	return svc, repo, prov, gdb
}

func chatMessages(t *testing.T, gdb *gorm.DB, chatID string) []Message {
	t.Helper()
	var msgs []Message
	if err := gdb.Where("chat_id = ?", chatID).Order("position ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	return msgs
}

func TestCreateConversation_LowQualityMatchesExample(t *testing.T) {
	svc, repo, prov, gdb := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateConversation(ctx, CreateInput{Prompt: "Build a pomodoro timer", Model: testPrimary, Quality: QualityLow})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msgs := chatMessages(t, gdb, res.ChatID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Position != 0 || msgs[0].Role != "system" || msgs[0].Content != prompt.CodingSystemPrompt(prompt.ExamplePomodoroTimer) {
		t.Fatalf("unexpected system seed: pos=%d role=%q", msgs[0].Position, msgs[0].Role)
	}
	if msgs[1].Position != 1 || msgs[1].Role != "user" || msgs[1].Content != "Build a pomodoro timer" {
		t.Fatalf("unexpected user seed: %+v", msgs[1])
	}
	if res.LastMessageID != msgs[1].ID {
		t.Fatalf("expected last message id %s, got %s", msgs[1].ID, res.LastMessageID)
	}

	c, err := repo.GetChat(ctx, res.ChatID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if c.Title != "Pomodoro Timer" || !c.Shadcn || c.Quality != QualityLow {
		t.Fatalf("unexpected chat: %+v", c)
	}

	calls := prov.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected title and example calls only, got %d", len(calls))
	}
	for _, call := range calls {
		if call.model != testHelperModel || call.backend != ai.BackendDirect {
			t.Fatalf("helper stage used model=%q backend=%q", call.model, call.backend)
		}
	}
}

func TestCreateConversation_HighQualityUsesArchitectPlan(t *testing.T) {
	svc, _, prov, gdb := newTestService(t)

	res, err := svc.CreateConversation(context.Background(), CreateInput{Prompt: "Build a CRM", Model: testPrimary, Quality: QualityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msgs := chatMessages(t, gdb, res.ChatID)
	if msgs[1].Content != "ARCH PLAN" {
		t.Fatalf("expected architect output as user seed, got %q", msgs[1].Content)
	}

	var arch *recordedCall
	for _, c := range prov.Calls() {
		if strings.Contains(c.messages[0].Content, "software architect") {
			arch = &c
		}
	}
	if arch == nil {
		t.Fatal("architect stage not invoked")
	}
	if arch.model != testPrimary {
		t.Fatalf("architect should use the requested model, got %q", arch.model)
	}
	if arch.opts.Temperature == nil || *arch.opts.Temperature != prompt.ArchitectTemperature || arch.opts.MaxTokens != prompt.ArchitectMaxTokens {
		t.Fatalf("unexpected architect options: %+v", arch.opts)
	}
}

func TestCreateConversation_ScreenshotLowQuality(t *testing.T) {
	svc, _, prov, gdb := newTestService(t)

	res, err := svc.CreateConversation(context.Background(), CreateInput{
		Prompt: "clone this", Model: testPrimary, Quality: QualityLow, ScreenshotURL: "http://img/1.png",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var vision *recordedCall
	for _, c := range prov.Calls() {
		if c.model == testVisionModel {
			vision = &c
		}
	}
	if vision == nil || vision.opts.ImageURL != "http://img/1.png" || vision.opts.MaxTokens != prompt.ScreenshotMaxTokens {
		t.Fatalf("unexpected vision call: %+v", vision)
	}

	msgs := chatMessages(t, gdb, res.ChatID)
	if want := prompt.SeedUserMessage("clone this", "A red button.", ""); msgs[1].Content != want {
		t.Fatalf("unexpected user seed %q", msgs[1].Content)
	}
}

func TestCreateConversation_SelfHostedRejectsScreenshot(t *testing.T) {
	svc, _, prov, gdb := newTestService(t)

	_, err := svc.CreateConversation(context.Background(), CreateInput{
		Prompt: "anything", Model: testSelfHosted, Quality: QualityLow, ScreenshotURL: "http://img",
	})
	if !errors.Is(err, ErrScreenshotUnsupported) {
		t.Fatalf("expected ErrScreenshotUnsupported, got %v", err)
	}

	var n int64
	gdb.Model(&Message{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
	if len(prov.Calls()) != 0 {
		t.Fatal("no model call expected")
	}
}

func TestCreateConversation_SelfHostedRejectsHighQuality(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.CreateConversation(context.Background(), CreateInput{Prompt: "x", Model: testSelfHosted, Quality: QualityHigh})
	if !errors.Is(err, ErrArchitectUnsupported) {
		t.Fatalf("expected ErrArchitectUnsupported, got %v", err)
	}
}

func TestCreateConversation_SelfHostedHelperStages(t *testing.T) {
	svc, _, prov, _ := newTestService(t)

	if _, err := svc.CreateConversation(context.Background(), CreateInput{Prompt: "x", Model: testSelfHosted}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, c := range prov.Calls() {
		if c.backend != ai.BackendSelfHosted || c.model != testSelfHosted {
			t.Fatalf("expected self-hosted helper calls, got backend=%q model=%q", c.backend, c.model)
		}
	}
}

func TestCreateConversation_StageFailureLeavesUntitledChat(t *testing.T) {
	svc, _, prov, gdb := newTestService(t)
	prov.failOn = "title"

	_, err := svc.CreateConversation(context.Background(), CreateInput{Prompt: "x", Model: testPrimary})
	var upstream *ai.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	var chats []Chat
	gdb.Find(&chats)
	if len(chats) != 1 || chats[0].Title != "" {
		t.Fatalf("expected one untitled chat, got %+v", chats)
	}
	if msgs := chatMessages(t, gdb, chats[0].ID); len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestCreateConversation_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	for _, in := range []CreateInput{
		{Prompt: " ", Model: testPrimary},
		{Prompt: "x"},
		{Prompt: "x", Model: testPrimary, Quality: "medium"},
	} {
		if _, err := svc.CreateConversation(context.Background(), in); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("input %+v: expected ErrInvalidRequest, got %v", in, err)
		}
	}
}

func seedChat(t *testing.T, svc *Service) *CreateResult {
	t.Helper()
	res, err := svc.CreateConversation(context.Background(), CreateInput{Prompt: "Build a pomodoro timer", Model: testPrimary})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res
}

func TestAppendMessage_Positions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	res := seedChat(t, svc)

	u, err := svc.AppendMessage(ctx, res.ChatID, "make it blue", "user")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	a, err := svc.AppendMessage(ctx, res.ChatID, "done", "assistant")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if u.Position != 2 || a.Position != 3 {
		t.Fatalf("unexpected positions %d, %d", u.Position, a.Position)
	}

	if _, err := svc.AppendMessage(ctx, res.ChatID, "x", "system"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.AppendMessage(ctx, "missing", "x", "user"); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestAppendMessage_ConcurrentAppendsGetDistinctPositions(t *testing.T) {
	svc, _, _, gdb := newTestService(t)
	res := seedChat(t, svc)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AppendMessage(context.Background(), res.ChatID, fmt.Sprintf("turn %d", i), "user")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs := chatMessages(t, gdb, res.ChatID)
	if len(msgs) != n+2 {
		t.Fatalf("expected %d messages, got %d", n+2, len(msgs))
	}
	for i, m := range msgs {
		if m.Position != i {
			t.Fatalf("position gap at %d: %d", i, m.Position)
		}
	}
}

// stealPosition registers a create callback that, for the first `times`
// message inserts, writes another row into the slot the insert is about to
// take.
func stealPosition(t *testing.T, gdb *gorm.DB, times int) *int {
	t.Helper()
	var fired int
	err := gdb.Callback().Create().Before("gorm:create").Register("test:steal_position", func(tx *gorm.DB) {
		m, ok := tx.Statement.Dest.(*Message)
		if !ok || fired >= times {
			return
		}
		fired++
		now := time.Now()
		if err := tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO chat_messages (id, chat_id, role, content, position, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			fmt.Sprintf("01RACER%019d", fired), m.ChatID, "user", "racer", m.Position, now, now,
		).Error; err != nil {
			t.Errorf("insert racer: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	return &fired
}

func TestAppendMessage_RetriesOnPositionConflict(t *testing.T) {
	svc, repo, _, gdb := newTestService(t)
	res := seedChat(t, svc)
	fired := stealPosition(t, gdb, 1)

	m, err := repo.AppendMessage(context.Background(), res.ChatID, "user", "after race")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if *fired != 1 {
		t.Fatalf("expected one conflicting insert, got %d", *fired)
	}
	if m.Position != 2 {
		t.Fatalf("unexpected position: %d", m.Position)
	}
	msgs := chatMessages(t, gdb, res.ChatID)
	if len(msgs) != 3 || msgs[2].Content != "after race" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestAppendMessage_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, repo, _, gdb := newTestService(t)
	res := seedChat(t, svc)
	fired := stealPosition(t, gdb, appendRetries)

	_, err := repo.AppendMessage(context.Background(), res.ChatID, "user", "never lands")
	if err == nil || !isDuplicateKey(errors.Unwrap(err)) {
		t.Fatalf("expected position conflict, got %v", err)
	}
	if *fired != appendRetries {
		t.Fatalf("expected %d attempts, got %d", appendRetries, *fired)
	}
	if msgs := chatMessages(t, gdb, res.ChatID); len(msgs) != 2 {
		t.Fatalf("expected no new message, got %d", len(msgs))
	}
}

func TestRelayCompletion_StoresAssistantReply(t *testing.T) {
	svc, _, prov, gdb := newTestService(t)
	ctx := context.Background()
	res := seedChat(t, svc)

	var out bytes.Buffer
	reply, err := svc.RelayCompletion(ctx, res.LastMessageID, testPrimary, &out)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if out.String() != helloStream {
		t.Fatalf("expected raw bytes relayed unchanged, got %q", out.String())
	}
	if reply.Content != "Hello" || reply.Role != "assistant" || reply.Position != 2 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if msgs := chatMessages(t, gdb, res.ChatID); len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	calls := prov.Calls()
	last := calls[len(calls)-1]
	if !last.stream || len(last.messages) != 2 || last.model != testPrimary {
		t.Fatalf("unexpected stream call: %+v", last)
	}
	if last.opts.Temperature == nil || *last.opts.Temperature != prompt.CompletionTemperature || last.opts.MaxTokens != 9000 {
		t.Fatalf("unexpected stream options: %+v", last.opts)
	}
}

func TestRelayCompletion_HistoryStopsAtMessage(t *testing.T) {
	svc, _, prov, _ := newTestService(t)
	ctx := context.Background()
	res := seedChat(t, svc)
	if _, err := svc.AppendMessage(ctx, res.ChatID, "later", "user"); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := svc.RelayCompletion(ctx, res.LastMessageID, testPrimary, io.Discard); err != nil {
		t.Fatalf("relay: %v", err)
	}
	calls := prov.Calls()
	if got := len(calls[len(calls)-1].messages); got != 2 {
		t.Fatalf("expected history up to position 1, got %d messages", got)
	}
}

type failingBody struct {
	r   io.Reader
	err error
}

func (b *failingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, b.err
	}
	return n, err
}

func (b *failingBody) Close() error { return nil }

func TestRelayCompletion_ReadErrorStoresNothing(t *testing.T) {
	svc, _, prov, gdb := newTestService(t)
	res := seedChat(t, svc)

	boom := errors.New("connection reset")
	prov.body = func() io.ReadCloser {
		return &failingBody{r: strings.NewReader(`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n"), err: boom}
	}

	if _, err := svc.RelayCompletion(context.Background(), res.LastMessageID, testPrimary, io.Discard); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
	if msgs := chatMessages(t, gdb, res.ChatID); len(msgs) != 2 {
		t.Fatalf("expected no assistant message, got %d messages", len(msgs))
	}
}

func TestRelayCompletion_SelfHostedSendsNoSamplingOptions(t *testing.T) {
	svc, _, prov, _ := newTestService(t)
	res, err := svc.CreateConversation(context.Background(), CreateInput{Prompt: "x", Model: testSelfHosted})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.RelayCompletion(context.Background(), res.LastMessageID, testSelfHosted, io.Discard); err != nil {
		t.Fatalf("relay: %v", err)
	}
	calls := prov.Calls()
	last := calls[len(calls)-1]
	if last.backend != ai.BackendSelfHosted || last.opts.Temperature != nil || last.opts.MaxTokens != 0 {
		t.Fatalf("unexpected self-hosted stream call: %+v", last)
	}
}

func TestOpenCompletionStream_InvalidHistory(t *testing.T) {
	svc, _, _, gdb := newTestService(t)
	res := seedChat(t, svc)

	bad := Message{ID: "01BADMESSAGE00000000000000", ChatID: res.ChatID, Role: "tool", Content: "x", Position: 2}
	if err := gdb.Create(&bad).Error; err != nil {
		t.Fatalf("insert bad row: %v", err)
	}

	if _, err := svc.OpenCompletionStream(context.Background(), bad.ID, testPrimary); !errors.Is(err, ErrInvalidHistory) {
		t.Fatalf("expected ErrInvalidHistory, got %v", err)
	}
}

func TestOpenCompletionStream_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.OpenCompletionStream(context.Background(), "nope", testPrimary)
	if !errors.Is(err, ErrMessageNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected message not found, got %v", err)
	}
}

func TestOpenCompletionStream_MissingSelfHostedConfig(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	res := seedChat(t, svc)
	svc.router = ai.NewRouter(ai.RouterConfig{SelfHostedModel: testSelfHosted})

	_, err := svc.OpenCompletionStream(context.Background(), res.LastMessageID, testSelfHosted)
	var cfgErr *ai.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected config error, got %v", err)
	}
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) TryLock(ctx context.Context, chatID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[chatID] {
		return "", false, nil
	}
	l.held[chatID] = true
	return "tok", true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, chatID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, chatID)
	return nil
}

func TestRelayCompletion_LockHeld(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	res := seedChat(t, svc)
	locker := &fakeLocker{held: map[string]bool{res.ChatID: true}}
	svc.WithLocker(locker)

	if _, err := svc.RelayCompletion(context.Background(), res.LastMessageID, testPrimary, io.Discard); !errors.Is(err, ErrStreamInProgress) {
		t.Fatalf("expected ErrStreamInProgress, got %v", err)
	}

	delete(locker.held, res.ChatID)
	if _, err := svc.RelayCompletion(context.Background(), res.LastMessageID, testPrimary, io.Discard); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if locker.held[res.ChatID] {
		t.Fatal("lock not released")
	}
}

func TestJobs_IdempotentEnqueueAndRun(t *testing.T) {
	svc, repo, _, gdb := newTestService(t)
	ctx := context.Background()
	res := seedChat(t, svc)

	key := "retry-1"
	job, created, err := svc.EnqueueCompletion(ctx, res.LastMessageID, testPrimary, &key)
	if err != nil || !created {
		t.Fatalf("enqueue: created=%v err=%v", created, err)
	}
	again, created, err := svc.EnqueueCompletion(ctx, res.LastMessageID, testPrimary, &key)
	if err != nil || created || again.ID != job.ID {
		t.Fatalf("expected existing job %s, got %+v created=%v err=%v", job.ID, again, created, err)
	}

	if err := svc.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("run job: %v", err)
	}
	got, err := repo.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobSucceeded || got.ResultMessageID == nil {
		t.Fatalf("unexpected job: %+v", got)
	}

	// redelivery is a no-op
	if err := svc.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("rerun job: %v", err)
	}
	if msgs := chatMessages(t, gdb, res.ChatID); len(msgs) != 3 {
		t.Fatalf("expected one assistant reply, got %d messages", len(msgs))
	}

	if _, err := svc.GetJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRunJob_TransientFailureRequeues(t *testing.T) {
	svc, repo, prov, gdb := newTestService(t)
	ctx := context.Background()
	res := seedChat(t, svc)

	job, _, err := svc.EnqueueCompletion(ctx, res.LastMessageID, testPrimary, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	boom := errors.New("connection reset")
	prov.body = func() io.ReadCloser {
		return &failingBody{r: strings.NewReader(""), err: boom}
	}
	if err := svc.RunJob(ctx, job.ID); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
	got, _ := repo.GetJobByID(ctx, job.ID)
	if got.Status != JobQueued || got.Error == nil {
		t.Fatalf("expected requeued job with error, got %+v", got)
	}

	// the retry claims it again and succeeds
	prov.body = func() io.ReadCloser { return io.NopCloser(strings.NewReader(helloStream)) }
	if err := svc.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	got, _ = repo.GetJobByID(ctx, job.ID)
	if got.Status != JobSucceeded {
		t.Fatalf("expected succeeded, got %+v", got)
	}
	if msgs := chatMessages(t, gdb, res.ChatID); len(msgs) != 3 {
		t.Fatalf("expected one assistant reply, got %d messages", len(msgs))
	}
}

func TestRunJob_PermanentFailureMarksFailed(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.CreateConversation(ctx, CreateInput{Prompt: "x", Model: testSelfHosted})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	job, _, err := svc.EnqueueCompletion(ctx, res.LastMessageID, testSelfHosted, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	svc.router = ai.NewRouter(ai.RouterConfig{SelfHostedModel: testSelfHosted})
	var cfgErr *ai.ConfigError
	if err := svc.RunJob(ctx, job.ID); !errors.As(err, &cfgErr) {
		t.Fatalf("expected config error, got %v", err)
	}
	got, _ := repo.GetJobByID(ctx, job.ID)
	if got.Status != JobFailed {
		t.Fatalf("expected failed job, got %+v", got)
	}

	if err := svc.FailJob(ctx, job.ID, "gave up"); err != nil {
		t.Fatalf("fail job: %v", err)
	}
	got, _ = repo.GetJobByID(ctx, job.ID)
	if got.Error == nil || *got.Error != "gave up" {
		t.Fatalf("unexpected error text: %+v", got.Error)
	}
}

func TestGetChat_OrdersMessages(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	res := seedChat(t, svc)

	c, err := svc.GetChat(context.Background(), res.ChatID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if len(c.Messages) != 2 || c.Messages[0].Position != 0 || c.Messages[1].Position != 1 {
		t.Fatalf("unexpected messages: %+v", c.Messages)
	}
	if _, err := svc.GetChat(context.Background(), "missing"); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}
