package connector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/aiomigrate/internal/domain"
)

func newTestClient(t *testing.T, dialect string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		Info:       EndpointInfo{ID: 1, Name: "test", Dialect: dialect, URL: srv.URL + "/api"},
		APIKey:     "secret-key-123456789",
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func decodeSearch(t *testing.T, r *http.Request) searchRequest {
	t.Helper()
	var req searchRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestDialectHeaders(t *testing.T) {
	tests := []struct {
		dialect    string
		wantAccept string
	}{
		{DialectLegacy, "application/json"},
		{DialectCloud, ""},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			c := newTestClient(t, tt.dialect, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "secret-key-123456789", r.Header.Get("api-secret-key"))
				assert.Equal(t, "v1", r.Header.Get("api-version"))
				assert.Equal(t, tt.wantAccept, r.Header.Get("Accept"))
				writeJSON(w, map[string]any{"policies": []any{}})
			})
			_, err := c.ListPolicies(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, c.Info().Dialect)
		})
	}
}

func TestListContainersPagesAndFiltersCloudAccounts(t *testing.T) {
	pages := [][]map[string]any{
		{
			{"ID": 1, "name": "Root"},
			{"ID": 2, "name": "AWS", "cloudType": "amazon"},
		},
		{
			{"ID": 5, "name": "Linux", "parentGroupID": 1},
			{"ID": 7, "name": "Account", "type": "aws-account"},
		},
		{},
	}
	var calls atomic.Int32
	c := newTestClient(t, DialectLegacy, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/computergroups/search", r.URL.Path)
		req := decodeSearch(t, r)
		n := calls.Add(1) - 1
		assert.Equal(t, pageSize, req.MaxItems)
		require.Len(t, req.SearchCriteria, 1)
		wantID := map[int32]int64{0: 0, 1: 2, 2: 7}[n]
		assert.Equal(t, wantID, *req.SearchCriteria[0].IDValue)
		assert.Equal(t, "greater-than", req.SearchCriteria[0].IDTest)
		writeJSON(w, map[string]any{"computerGroups": pages[n]})
	})

	recs, err := c.ListContainers(context.Background(), domain.ContainerKindGroup)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Root", recs[0].Name)
	assert.Nil(t, recs[0].ParentID)
	assert.Equal(t, int64(1), *recs[1].ParentID)
	assert.Equal(t, domain.ContainerKindGroup, recs[1].Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFindContainerRootFiltersNestedNamesakes(t *testing.T) {
	c := newTestClient(t, DialectCloud, func(w http.ResponseWriter, r *http.Request) {
		req := decodeSearch(t, r)
		require.Len(t, req.SearchCriteria, 1)
		assert.Equal(t, "name", req.SearchCriteria[0].FieldName)
		writeJSON(w, map[string]any{"smartFolders": []map[string]any{
			{"ID": 3, "name": "Prod", "parentSmartFolderID": 1},
			{"ID": 9, "name": "Prod"},
		}})
	})

	rec, err := c.FindContainer(context.Background(), domain.ContainerKindFolder, "Prod", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), rec.ID)
}

func TestFindContainerUnderParent(t *testing.T) {
	c := newTestClient(t, DialectCloud, func(w http.ResponseWriter, r *http.Request) {
		req := decodeSearch(t, r)
		require.Len(t, req.SearchCriteria, 2)
		assert.Equal(t, 2, req.MaxItems)
		assert.Equal(t, "parentGroupID", req.SearchCriteria[1].FieldName)
		assert.Equal(t, int64(4), *req.SearchCriteria[1].NumericValue)
		writeJSON(w, map[string]any{"computerGroups": []any{}})
	})

	_, err := c.FindContainer(context.Background(), domain.ContainerKindGroup, "Linux", domain.Int64Ptr(4))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateContainerPayload(t *testing.T) {
	c := newTestClient(t, DialectCloud, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/smartfolders", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Prod", body["name"])
		assert.Equal(t, float64(12), body["parentSmartFolderID"])
		assert.NotContains(t, body, "ID")
		assert.NotContains(t, body, "parentGroupID")
		writeJSON(w, map[string]any{"ID": 77})
	})

	id, err := c.CreateContainer(context.Background(), domain.ContainerSpec{
		Name:     "Prod",
		Kind:     domain.ContainerKindFolder,
		ParentID: domain.Int64Ptr(12),
		RuleGroups: []domain.RuleGroup{{Rules: []domain.Rule{
			{"key": "general-policy", "value": "3", "operator": "equal"},
		}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		is         error
		structural bool
	}{
		{"duplicate", 400, `{"message":"A Computer Group named \"Linux\" already exists."}`, domain.ErrDuplicateName, false},
		{"must be unique", 400, `{"message":"Name must be unique."}`, domain.ErrDuplicateName, false},
		{"bad request", 400, `{"message":"invalid field"}`, domain.ErrValidation, false},
		{"unprocessable", 422, ``, domain.ErrValidation, false},
		{"not found", 404, ``, domain.ErrNotFound, false},
		{"unauthorized", 401, ``, domain.ErrUnauthorized, true},
		{"forbidden", 403, ``, domain.ErrUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, DialectLegacy, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.CreateContainer(context.Background(), domain.ContainerSpec{Name: "Linux", Kind: domain.ContainerKindGroup})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.Equal(t, tt.structural, domain.IsStructural(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestRetriesThrottledRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, DialectCloud, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"ID": 5})
	})

	id, err := c.CreateContainer(context.Background(), domain.ContainerSpec{Name: "A", Kind: domain.ContainerKindGroup})
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, DialectCloud, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ListPolicies(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.True(t, domain.IsStructural(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestContactsResolveRoles(t *testing.T) {
	var created map[string]any
	c := newTestClient(t, DialectCloud, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/roles/search":
			req := decodeSearch(t, r)
			if *req.SearchCriteria[0].IDValue > 0 {
				writeJSON(w, map[string]any{"roles": []any{}})
				return
			}
			writeJSON(w, map[string]any{"roles": []map[string]any{
				{"ID": 1, "name": "Full Access"},
				{"ID": 4, "name": "Read Only", "v1RoleName": "Auditor"},
			}})
		case "/api/contacts/search":
			writeJSON(w, map[string]any{"contacts": []map[string]any{
				{"ID": 8, "name": "Ops", "emailAddress": "ops@example.com", "roleID": 4},
			}})
		case "/api/contacts":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			writeJSON(w, map[string]any{"ID": 9})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	contact, err := c.FindContact(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAuditor, contact.Role)

	id, err := c.CreateContact(context.Background(), domain.Contact{Email: "new@example.com", Role: domain.RoleAuditor})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, float64(4), created["roleID"])
	assert.Equal(t, "new@example.com", created["name"])
}

func TestScheduledTaskRoundTrip(t *testing.T) {
	raw := `{
		"ID": 11,
		"name": "Weekly Scan",
		"type": "scan-for-malware",
		"enabled": true,
		"scheduleDetails": {"recurrenceType": "weekly", "timeZone": "UTC"},
		"scanForMalwareTaskParameters": {
			"computerFilter": {"type": "computers-in-group", "computerGroupID": 3},
			"timeout": "never"
		}
	}`

	rec, err := decodeTask(domain.TaskKindScheduled, json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "Weekly Scan", rec.Name)
	assert.Equal(t, "scanForMalwareTaskParameters", rec.ParamsKey)
	require.NotNil(t, rec.Filter)
	assert.Equal(t, int64(3), *rec.Filter.ComputerGroupID)
	assert.NotContains(t, string(rec.Trigger), "scanForMalwareTaskParameters")
	assert.Contains(t, string(rec.Trigger), "scheduleDetails")

	rec.Name = "M-Weekly Scan"
	rec.Filter.ComputerGroupID = domain.Int64Ptr(42)
	out, err := encodeTask(rec)
	require.NoError(t, err)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "ID")
	assert.Equal(t, "M-Weekly Scan", decoded["name"])
	assert.Contains(t, decoded, "scheduleDetails")
	params := decoded["scanForMalwareTaskParameters"].(map[string]any)
	assert.Equal(t, "never", params["timeout"])
	filter := params["computerFilter"].(map[string]any)
	assert.Equal(t, float64(42), filter["computerGroupID"])
}

func TestEventTaskRoundTrip(t *testing.T) {
	raw := `{
		"ID": 2,
		"name": "Assign Linux",
		"type": "agent-initiated-activation",
		"enabled": true,
		"actions": [
			{"type": "assign-policy", "parameterValue": 5},
			{"type": "activate"}
		],
		"conditions": [{"field": "platform", "value": "linux"}]
	}`

	rec, err := decodeTask(domain.TaskKindEventBased, json.RawMessage(raw))
	require.NoError(t, err)
	require.Len(t, rec.Actions, 2)
	assert.Equal(t, int64(5), *rec.Actions[0].ParameterValue)
	assert.Nil(t, rec.Actions[1].ParameterValue)
	assert.True(t, strings.Contains(string(rec.Trigger), "conditions"))

	rec.Actions[0].ParameterValue = domain.Int64Ptr(99)
	out, err := encodeTask(rec)
	require.NoError(t, err)
	actions := out["actions"].([]wireAction)
	assert.Equal(t, int64(99), *actions[0].ParameterValue)
	assert.Contains(t, out, "conditions")
}

func TestSupportsTaskType(t *testing.T) {
	cloud, err := DialectFor(DialectCloud)
	require.NoError(t, err)
	legacy, err := DialectFor(DialectLegacy)
	require.NoError(t, err)

	assert.False(t, cloud.SupportsTaskType(domain.TaskKindScheduled, "check-for-software-updates"))
	assert.True(t, cloud.SupportsTaskType(domain.TaskKindScheduled, "scan-for-malware"))
	assert.True(t, legacy.SupportsTaskType(domain.TaskKindScheduled, "check-for-software-updates"))

	_, err = DialectFor("rest")
	assert.Error(t, err)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "...23456789", MaskKey("secret-key-123456789"))
	assert.Equal(t, "short", MaskKey("short"))
}
