package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatform/backend/internal/model/form"
	"github.com/chatform/backend/internal/service/gateway"
)

// fakeGateway hands out empty conversation handles and replays a scripted
// turn result.
type fakeGateway struct {
	greeting   string
	nextResult form.RawTurnResult
	turnErr    error
	turnCount  int
}

func (f *fakeGateway) CreateConversation(_ context.Context, _ form.Schema) (*gateway.Conversation, string, error) {
	return &gateway.Conversation{}, f.greeting, nil
}

func (f *fakeGateway) Turn(_ context.Context, _ *gateway.Conversation, _ string) (form.RawTurnResult, error) {
	f.turnCount++
	if f.turnErr != nil {
		return form.RawTurnResult{}, f.turnErr
	}
	return f.nextResult, nil
}

func structuredTurn(message string, fields ...form.FieldUpdate) form.RawTurnResult {
	return form.RawTurnResult{Structured: &form.StructuredTurn{
		AIMessage: message,
		Fields:    fields,
	}}
}

func validSchema() form.Schema {
	return form.Schema{"name": "string", "email": "email"}
}

func TestCreateLifecycle(t *testing.T) {
	store := NewStore(&fakeGateway{greeting: "welcome"})
	ctx := context.Background()

	created, err := store.Create(ctx, validSchema())
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if created.Greeting != "welcome" {
		t.Fatalf("unexpected greeting: %q", created.Greeting)
	}
	if !store.Has(created.SessionID) {
		t.Fatal("expected Has to report the new session")
	}
	if store.Count() != 1 {
		t.Fatalf("expected count 1, got %d", store.Count())
	}

	if !store.Delete(created.SessionID) {
		t.Fatal("expected first Delete to return true")
	}
	if store.Delete(created.SessionID) {
		t.Fatal("expected second Delete to return false")
	}
	if store.Has(created.SessionID) {
		t.Fatal("expected Has to be false after delete")
	}
}

func TestCreateInvalidSchema(t *testing.T) {
	store := NewStore(&fakeGateway{})

	cases := []form.Schema{
		nil,
		{},
		{"age": "integer"},
	}
	for _, schema := range cases {
		if _, err := store.Create(context.Background(), schema); !errors.Is(err, ErrInvalidSchema) {
			t.Fatalf("expected ErrInvalidSchema for %v, got %v", schema, err)
		}
	}
	if store.Count() != 0 {
		t.Fatalf("invalid schemas must not create sessions, count=%d", store.Count())
	}
}

func TestSendMessageAccumulates(t *testing.T) {
	gw := &fakeGateway{}
	store := NewStore(gw)
	ctx := context.Background()

	created, err := store.Create(ctx, validSchema())
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	gw.nextResult = structuredTurn("got it",
		form.FieldUpdate{Key: "a", Value: "1"},
	)
	if _, err := store.SendMessage(ctx, created.SessionID, "my a is 1"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	gw.nextResult = structuredTurn("thanks",
		form.FieldUpdate{Key: "a", Value: "2"},
		form.FieldUpdate{Key: "b", Value: "3"},
	)
	reply, err := store.SendMessage(ctx, created.SessionID, "actually a is 2, b is 3")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	if reply.Response != "thanks" {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
	if reply.FormData["a"] != "2" || reply.FormData["b"] != "3" {
		t.Fatalf("unexpected form data: %v", reply.FormData)
	}
}

func TestSendMessageDuplicateKeyLaterWins(t *testing.T) {
	gw := &fakeGateway{nextResult: structuredTurn("ok",
		form.FieldUpdate{Key: "city", Value: "Oslo"},
		form.FieldUpdate{Key: "city", Value: "Bergen"},
	)}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	reply, err := store.SendMessage(ctx, created.SessionID, "moving around")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if reply.FormData["city"] != "Bergen" {
		t.Fatalf("expected later entry to win, got %q", reply.FormData["city"])
	}
}

func TestSendMessageIdempotentReapply(t *testing.T) {
	gw := &fakeGateway{nextResult: structuredTurn("ok",
		form.FieldUpdate{Key: "name", Value: "Ada"},
	)}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	first, err := store.SendMessage(ctx, created.SessionID, "I'm Ada")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	second, err := store.SendMessage(ctx, created.SessionID, "I'm Ada")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	if len(first.FormData) != len(second.FormData) || second.FormData["name"] != "Ada" {
		t.Fatalf("re-applying identical extraction changed state: %v vs %v", first.FormData, second.FormData)
	}
}

func TestSendMessageSkipsEmptyKeyOrValue(t *testing.T) {
	gw := &fakeGateway{nextResult: structuredTurn("ok",
		form.FieldUpdate{Key: "", Value: "orphan"},
		form.FieldUpdate{Key: "blank", Value: ""},
		form.FieldUpdate{Key: "kept", Value: "yes"},
	)}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	reply, err := store.SendMessage(ctx, created.SessionID, "hi")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if len(reply.FormData) != 1 || reply.FormData["kept"] != "yes" {
		t.Fatalf("expected only the complete pair to be stored: %v", reply.FormData)
	}
}

func TestSendMessageLegacyShapeMerges(t *testing.T) {
	gw := &fakeGateway{nextResult: structuredTurn("ok",
		form.FieldUpdate{Key: "a", Value: "1"},
	)}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	if _, err := store.SendMessage(ctx, created.SessionID, "first"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	gw.nextResult = form.RawTurnResult{Structured: &form.StructuredTurn{
		AIMessage: "legacy",
		Legacy:    map[string]string{"b": "3"},
	}}
	reply, err := store.SendMessage(ctx, created.SessionID, "second")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if reply.FormData["a"] != "1" || reply.FormData["b"] != "3" {
		t.Fatalf("unexpected merged form data: %v", reply.FormData)
	}
}

func TestSendMessagePlainTextPassThrough(t *testing.T) {
	gw := &fakeGateway{nextResult: structuredTurn("ok",
		form.FieldUpdate{Key: "a", Value: "1"},
	)}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	if _, err := store.SendMessage(ctx, created.SessionID, "first"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	gw.nextResult = form.RawTurnResult{Text: "just chatting"}
	reply, err := store.SendMessage(ctx, created.SessionID, "second")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if reply.Response != "just chatting" {
		t.Fatalf("expected verbatim pass-through, got %q", reply.Response)
	}
	if reply.FormData != nil {
		t.Fatalf("plain text must not attach form data: %v", reply.FormData)
	}

	info := store.Info(created.SessionID)
	if info == nil || info.FormData["a"] != "1" || len(info.FormData) != 1 {
		t.Fatalf("plain text must leave accumulated state untouched: %+v", info)
	}
}

func TestSendMessageUnrecognizedShapePassThrough(t *testing.T) {
	gw := &fakeGateway{nextResult: form.RawTurnResult{Structured: &form.StructuredTurn{
		AIMessage: "shapeless",
	}}}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	reply, err := store.SendMessage(ctx, created.SessionID, "hi")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if reply.Response != "shapeless" || reply.FormData != nil {
		t.Fatalf("unexpected reply for shapeless turn: %+v", reply)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	gw := &fakeGateway{}
	store := NewStore(gw)

	if _, err := store.SendMessage(context.Background(), "missing", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if gw.turnCount != 0 {
		t.Fatal("unknown session must not reach the gateway")
	}
}

func TestSendMessageGatewayErrorLeavesStateUntouched(t *testing.T) {
	gw := &fakeGateway{nextResult: structuredTurn("ok", form.FieldUpdate{Key: "a", Value: "1"})}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	if _, err := store.SendMessage(ctx, created.SessionID, "first"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	gw.turnErr = errors.New("boom")
	if _, err := store.SendMessage(ctx, created.SessionID, "second"); err == nil {
		t.Fatal("expected gateway error to propagate")
	}

	info := store.Info(created.SessionID)
	if info == nil || len(info.FormData) != 1 {
		t.Fatalf("failed turn must not mutate accumulated state: %+v", info)
	}
}

func TestInfoReturnsSnapshot(t *testing.T) {
	gw := &fakeGateway{nextResult: structuredTurn("ok", form.FieldUpdate{Key: "a", Value: "1"})}
	store := NewStore(gw)
	ctx := context.Background()

	created, _ := store.Create(ctx, validSchema())
	if _, err := store.SendMessage(ctx, created.SessionID, "hi"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	info := store.Info(created.SessionID)
	info.FormData["a"] = "tampered"
	info.Schema["injected"] = "string"

	fresh := store.Info(created.SessionID)
	if fresh.FormData["a"] != "1" {
		t.Fatalf("Info must return a copy of form data, got %v", fresh.FormData)
	}
	if _, ok := fresh.Schema["injected"]; ok {
		t.Fatal("Info must return a copy of the schema")
	}

	if store.Info("missing") != nil {
		t.Fatal("expected nil summary for unknown session")
	}
}

func TestListIDs(t *testing.T) {
	store := NewStore(&fakeGateway{})
	ctx := context.Background()

	first, _ := store.Create(ctx, validSchema())
	second, _ := store.Create(ctx, validSchema())

	ids := store.ListIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	seen := map[string]bool{ids[0]: true, ids[1]: true}
	if !seen[first.SessionID] || !seen[second.SessionID] {
		t.Fatalf("missing ids in %v", ids)
	}
}

func TestSweepExpired(t *testing.T) {
	store := NewStore(&fakeGateway{})
	ctx := context.Background()

	old, _ := store.Create(ctx, validSchema())
	fresh, _ := store.Create(ctx, validSchema())

	store.mu.Lock()
	store.sessions[old.SessionID].createdAt = time.Now().UTC().Add(-90 * time.Minute)
	store.sessions[fresh.SessionID].createdAt = time.Now().UTC().Add(-10 * time.Minute)
	store.mu.Unlock()

	removed := store.SweepExpired(60 * time.Minute)
	if removed != 1 {
		t.Fatalf("expected 1 expired session, got %d", removed)
	}
	if store.Has(old.SessionID) {
		t.Fatal("expected the 90-minute-old session to be swept")
	}
	if !store.Has(fresh.SessionID) {
		t.Fatal("expected the 10-minute-old session to survive")
	}
}
