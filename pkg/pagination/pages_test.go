package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sync"
	"testing"
)

// fakeGetter serves scripted JSON bodies and records every request.
type fakeGetter struct {
	mu       sync.Mutex
	respond  func(endpoint string, query url.Values) (string, error)
	requests []request
}

type request struct {
	endpoint string
	query    url.Values
}

func (f *fakeGetter) GetJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	f.mu.Lock()
	f.requests = append(f.requests, request{endpoint: endpoint, query: query})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := f.respond(endpoint, query)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), v)
}

func (f *fakeGetter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func pagesByIndex(pages ...string) func(string, url.Values) (string, error) {
	return func(_ string, query url.Values) (string, error) {
		var page int
		if _, err := fmt.Sscan(query.Get("page"), &page); err != nil {
			return "", err
		}
		if page < len(pages) {
			return pages[page], nil
		}
		return "[]", nil
	}
}

func collectIDs(t *testing.T, seq func(func(Entity, error) bool)) []string {
	t.Helper()
	var ids []string
	for entity, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, entity.ID())
	}
	return ids
}

func TestPages(t *testing.T) {
	getter := &fakeGetter{respond: pagesByIndex(
		`[{"id":"A"},{"id":"B"}]`,
		`[{"id":"C"}]`,
		`[]`,
	)}

	ids := collectIDs(t, Pages(context.Background(), getter, "/teams", nil, 0))

	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := getter.count(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	for i, req := range getter.requests {
		if req.endpoint != "/teams" {
			t.Errorf("request %d endpoint = %q, want /teams", i, req.endpoint)
		}
		if got, want := req.query.Get("page"), fmt.Sprint(i); got != want {
			t.Errorf("request %d page = %q, want %q", i, got, want)
		}
	}
}

func TestPages_StartPageAndParams(t *testing.T) {
	getter := &fakeGetter{respond: pagesByIndex(`[{"id":"skipped"}]`, `[]`, `[{"id":"X"}]`)}
	params := url.Values{"include_deleted": {"true"}}

	ids := collectIDs(t, Pages(context.Background(), getter, "/channels", params, 2))

	if want := []string{"X"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := getter.requests[0].query.Get("include_deleted"); got != "true" {
		t.Errorf("include_deleted = %q, want true", got)
	}
	if params.Get("page") != "" {
		t.Error("caller params were modified")
	}
}

func TestPages_Lazy(t *testing.T) {
	getter := &fakeGetter{respond: pagesByIndex(`[{"id":"A"},{"id":"B"}]`, `[{"id":"C"}]`)}

	seq := Pages(context.Background(), getter, "/users", nil, 0)
	if got := getter.count(); got != 0 {
		t.Fatalf("requests before iteration = %d, want 0", got)
	}

	for entity, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entity.ID() == "B" {
			break
		}
	}

	if got := getter.count(); got != 1 {
		t.Errorf("requests after consuming the first page = %d, want 1", got)
	}
}

func TestPages_ErrorPassthrough(t *testing.T) {
	sentinel := errors.New("connection reset")
	getter := &fakeGetter{respond: func(_ string, query url.Values) (string, error) {
		if query.Get("page") == "1" {
			return "", sentinel
		}
		return `[{"id":"A"}]`, nil
	}}

	var ids []string
	var gotErr error
	for entity, err := range Pages(context.Background(), getter, "/bots", nil, 0) {
		if err != nil {
			gotErr = err
			break
		}
		ids = append(ids, entity.ID())
	}

	if gotErr != sentinel {
		t.Errorf("error = %v, want the session error unmodified", gotErr)
	}
	if !reflect.DeepEqual(ids, []string{"A"}) {
		t.Errorf("ids before error = %v, want [A]", ids)
	}
}

func TestPages_NotAnArray(t *testing.T) {
	getter := &fakeGetter{respond: func(string, url.Values) (string, error) {
		return `{"id":"A"}`, nil
	}}

	for _, err := range Pages(context.Background(), getter, "/emoji", nil, 0) {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			t.Errorf("error = %v, want *json.UnmarshalTypeError", err)
		}
		break
	}
}

func postsByCursor(pages map[string]string) func(string, url.Values) (string, error) {
	return func(_ string, query url.Values) (string, error) {
		if body, ok := pages[query.Get("before")]; ok {
			return body, nil
		}
		return `{"order":[],"posts":{}}`, nil
	}
}

func TestPosts(t *testing.T) {
	getter := &fakeGetter{respond: postsByCursor(map[string]string{
		"": `{"order":["p3","p2","p1"],"posts":{"p1":{"id":"p1"},"p2":{"id":"p2"},"p3":{"id":"p3"}}}`,
	})}

	ids := collectIDs(t, Posts(context.Background(), getter, "chan1", 0, ""))

	if want := []string{"p3", "p2", "p1"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := getter.count(); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}

	first, second := getter.requests[0], getter.requests[1]
	if first.endpoint != "/channels/chan1/posts" {
		t.Errorf("endpoint = %q, want /channels/chan1/posts", first.endpoint)
	}
	if got := first.query.Get("per_page"); got != "100" {
		t.Errorf("per_page = %q, want 100", got)
	}
	if _, ok := first.query["before"]; !ok || first.query.Get("before") != "" {
		t.Errorf("first before = %v, want empty cursor", first.query["before"])
	}
	if got := second.query.Get("before"); got != "p1" {
		t.Errorf("second before = %q, want p1", got)
	}
}

func TestPosts_MultiplePages(t *testing.T) {
	getter := &fakeGetter{respond: postsByCursor(map[string]string{
		"":   `{"order":["p4","p3"],"posts":{"p3":{"id":"p3"},"p4":{"id":"p4"}}}`,
		"p3": `{"order":["p2","p1"],"posts":{"p1":{"id":"p1"},"p2":{"id":"p2"}}}`,
	})}

	ids := collectIDs(t, Posts(context.Background(), getter, "chan1", 2, ""))

	if want := []string{"p4", "p3", "p2", "p1"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := getter.count(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if got := getter.requests[0].query.Get("per_page"); got != "2" {
		t.Errorf("per_page = %q, want 2", got)
	}
}

func TestPosts_StartCursor(t *testing.T) {
	getter := &fakeGetter{respond: postsByCursor(map[string]string{
		"p9": `{"order":["p8"],"posts":{"p8":{"id":"p8"}}}`,
	})}

	ids := collectIDs(t, Posts(context.Background(), getter, "chan1", 10, "p9"))

	if want := []string{"p8"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := getter.requests[0].query.Get("before"); got != "p9" {
		t.Errorf("before = %q, want p9", got)
	}
}

func TestPosts_EmptyFirstPage(t *testing.T) {
	getter := &fakeGetter{respond: postsByCursor(nil)}

	ids := collectIDs(t, Posts(context.Background(), getter, "chan1", 0, ""))

	if len(ids) != 0 {
		t.Errorf("ids = %v, want none", ids)
	}
	if got := getter.count(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestPosts_MissingItem(t *testing.T) {
	getter := &fakeGetter{respond: postsByCursor(map[string]string{
		"": `{"order":["p2","p1"],"posts":{"p2":{"id":"p2"}}}`,
	})}

	for _, err := range Posts(context.Background(), getter, "chan1", 0, "") {
		if !errors.Is(err, ErrMissingItem) {
			t.Errorf("error = %v, want ErrMissingItem", err)
		}
		break
	}
}

func TestPosts_ErrorPassthrough(t *testing.T) {
	sentinel := errors.New("timeout")
	getter := &fakeGetter{respond: func(string, url.Values) (string, error) {
		return "", sentinel
	}}

	for _, err := range Posts(context.Background(), getter, "chan1", 0, "") {
		if err != sentinel {
			t.Errorf("error = %v, want the session error unmodified", err)
		}
		break
	}
	if got := getter.count(); got != 1 {
		t.Errorf("requests = %d, want 1 (no retry)", got)
	}
}
