package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

const rallyAPIPath = "/slm/webservice/v2.0"

// storyFetchFields is the field list requested for user stories.
const storyFetchFields = "FormattedID,Name,Description,Notes,State,PlanEstimate,Owner,Project,ObjectID"

// RallyClient talks to the Rally (CA Agile Central) Web Services API v2.0
type RallyClient struct {
	server       string
	apiKey       string
	workspaceRef string
	httpClient   *http.Client
}

// NewRallyClient creates a Rally tracker backend
func NewRallyClient(server, apiKey, workspaceRef string) *RallyClient {
	return &RallyClient{
		server:       strings.TrimRight(server, "/"),
		apiKey:       apiKey,
		workspaceRef: workspaceRef,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the backend name
func (c *RallyClient) Name() string {
	return "rally"
}

// rallyParams are the query string parameters accepted by WSAPI reads.
type rallyParams struct {
	Workspace string `url:"workspace,omitempty"`
	Query     string `url:"query,omitempty"`
	Fetch     string `url:"fetch,omitempty"`
	PageSize  int    `url:"pagesize,omitempty"`
}

type rallyQueryResult struct {
	QueryResult struct {
		TotalResultCount int               `json:"TotalResultCount"`
		Results          []json.RawMessage `json:"Results"`
		Errors           []string          `json:"Errors"`
	} `json:"QueryResult"`
}

type rallyStory struct {
	Ref         string `json:"_ref"`
	FormattedID string `json:"FormattedID"`
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Notes       string `json:"Notes"`
	State       string `json:"ScheduleState"`
}

type rallyCreateResult struct {
	CreateResult struct {
		Object struct {
			Ref string `json:"_ref"`
		} `json:"Object"`
		Errors []string `json:"Errors"`
	} `json:"CreateResult"`
}

// FetchWorkItem retrieves a user story by FormattedID together with the
// summaries of its predecessor dependencies.
func (c *RallyClient) FetchWorkItem(ctx context.Context, id string) (*WorkItem, error) {
	var item *WorkItem

	err := retryTransient(func() error {
		fetched, fetchErr := c.fetchStory(ctx, id)
		if fetchErr != nil {
			return fetchErr
		}
		item = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Dependency resolution is best-effort: a broken link never fails the fetch.
	item.Dependencies = c.fetchDependencies(ctx, item.Ref)

	return item, nil
}

func (c *RallyClient) fetchStory(ctx context.Context, id string) (*WorkItem, error) {
	params := rallyParams{
		Workspace: c.workspaceRef,
		Query:     fmt.Sprintf("(FormattedID = %q)", id),
		Fetch:     storyFetchFields,
	}

	var result rallyQueryResult
	if err := c.get(ctx, "hierarchicalrequirement", params, &result); err != nil {
		return nil, err
	}

	if len(result.QueryResult.Errors) > 0 {
		return nil, fmt.Errorf("rally query failed: %s", strings.Join(result.QueryResult.Errors, "; "))
	}

	if result.QueryResult.TotalResultCount == 0 || len(result.QueryResult.Results) == 0 {
		return nil, &NotFoundError{ID: id}
	}

	var story rallyStory
	if err := json.Unmarshal(result.QueryResult.Results[0], &story); err != nil {
		return nil, fmt.Errorf("failed to parse user story %s: %w", id, err)
	}

	return &WorkItem{
		ID:                 story.FormattedID,
		Ref:                story.Ref,
		Title:              story.Name,
		Description:        story.Description,
		AcceptanceCriteria: story.Notes,
	}, nil
}

// fetchDependencies returns predecessor summaries for a story ref. Failures
// are logged and reduced to placeholder summaries.
func (c *RallyClient) fetchDependencies(ctx context.Context, storyRef string) []Dependency {
	params := rallyParams{
		Workspace: c.workspaceRef,
		Query:     fmt.Sprintf("(Successor = %q)", storyRef),
		Fetch:     "Predecessor,Successor,Description",
	}

	var result rallyQueryResult
	if err := c.get(ctx, "dependency", params, &result); err != nil {
		log.Printf("[Rally] Failed to fetch dependencies for %s: %v", storyRef, err)
		return nil
	}

	var deps []Dependency
	for _, raw := range result.QueryResult.Results {
		var link struct {
			Predecessor struct {
				Ref string `json:"_ref"`
			} `json:"Predecessor"`
		}
		if err := json.Unmarshal(raw, &link); err != nil || link.Predecessor.Ref == "" {
			continue
		}

		deps = append(deps, c.resolvePredecessor(ctx, link.Predecessor.Ref))
	}

	return deps
}

func (c *RallyClient) resolvePredecessor(ctx context.Context, ref string) Dependency {
	objectID := ref[strings.LastIndex(ref, "/")+1:]

	params := rallyParams{
		Workspace: c.workspaceRef,
		Fetch:     storyFetchFields,
	}

	var result struct {
		HierarchicalRequirement *rallyStory `json:"HierarchicalRequirement"`
	}
	if err := c.get(ctx, "hierarchicalrequirement/"+objectID, params, &result); err != nil || result.HierarchicalRequirement == nil {
		log.Printf("[Rally] Failed to resolve dependency %s: %v", objectID, err)
		return Dependency{ID: objectID, Summary: "dependency summary unavailable"}
	}

	story := result.HierarchicalRequirement
	return Dependency{
		ID:      story.FormattedID,
		Summary: story.Name,
	}
}

// AttachFile uploads content as a Rally attachment. WSAPI requires two
// writes: the base64 AttachmentContent first, then the Attachment record
// pointing at it.
func (c *RallyClient) AttachFile(ctx context.Context, item *WorkItem, filename string, content []byte) (string, error) {
	contentBody := map[string]any{
		"AttachmentContent": map[string]any{
			"Content": base64.StdEncoding.EncodeToString(content),
		},
	}

	var contentResult rallyCreateResult
	if err := c.post(ctx, "attachmentcontent/create", contentBody, &contentResult); err != nil {
		return "", err
	}
	if len(contentResult.CreateResult.Errors) > 0 {
		return "", fmt.Errorf("rally attachment content rejected: %s", strings.Join(contentResult.CreateResult.Errors, "; "))
	}

	attachmentBody := map[string]any{
		"Attachment": map[string]any{
			"Artifact":    item.Ref,
			"Content":     contentResult.CreateResult.Object.Ref,
			"ContentType": "text/plain",
			"Name":        filename,
			"Size":        len(content),
			"Description": "Generated code attachment",
		},
	}

	var attachResult rallyCreateResult
	if err := c.post(ctx, "attachment/create", attachmentBody, &attachResult); err != nil {
		return "", err
	}
	if len(attachResult.CreateResult.Errors) > 0 {
		return "", fmt.Errorf("rally attachment rejected: %s", strings.Join(attachResult.CreateResult.Errors, "; "))
	}

	return attachResult.CreateResult.Object.Ref, nil
}

func (c *RallyClient) get(ctx context.Context, endpoint string, params rallyParams, out any) error {
	values, err := query.Values(params)
	if err != nil {
		return fmt.Errorf("failed to encode query params: %w", err)
	}

	url := c.server + rallyAPIPath + "/" + endpoint + "?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, endpoint, out)
}

func (c *RallyClient) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	url := c.server + rallyAPIPath + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, endpoint, out)
}

func (c *RallyClient) do(req *http.Request, endpoint string, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ZSESSIONID", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: "rally " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Backend: "rally", Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return &TransientError{Op: "rally " + endpoint, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rally %s: unexpected status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rally %s: failed to decode response: %w", endpoint, err)
	}

	return nil
}
