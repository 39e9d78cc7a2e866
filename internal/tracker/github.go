package tracker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v66/github"
)

// issueRefPattern matches #N issue references inside an issue body.
var issueRefPattern = regexp.MustCompile(`#(\d+)`)

// acceptanceCriteriaHeadings are the body section headings treated as the
// acceptance criteria block.
var acceptanceCriteriaHeadings = []string{
	"## acceptance criteria",
	"### acceptance criteria",
	"## acceptance-criteria",
}

// GitHubClient uses GitHub issues as the work item tracker. A work item is an
// issue number; dependencies are the issues referenced from the body.
type GitHubClient struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubClient creates a GitHub tracker backend authenticated with a
// personal access or installation token.
func NewGitHubClient(token, repo string) (*GitHubClient, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	return &GitHubClient{
		client: github.NewClient(nil).WithAuthToken(token),
		owner:  owner,
		repo:   name,
	}, nil
}

// Name returns the backend name
func (c *GitHubClient) Name() string {
	return "github"
}

// FetchWorkItem retrieves an issue and resolves issues referenced from its
// body as dependency summaries.
func (c *GitHubClient) FetchWorkItem(ctx context.Context, id string) (*WorkItem, error) {
	number, err := parseIssueNumber(id)
	if err != nil {
		return nil, err
	}

	issue, resp, err := c.client.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, classifyGitHubError(fmt.Sprintf("#%d", number), resp, err)
	}

	body := issue.GetBody()
	item := &WorkItem{
		ID:                 fmt.Sprintf("#%d", number),
		Ref:                strconv.Itoa(number),
		Title:              issue.GetTitle(),
		Description:        body,
		AcceptanceCriteria: extractAcceptanceCriteria(body),
	}

	for _, depNumber := range referencedIssues(body, number) {
		item.Dependencies = append(item.Dependencies, c.resolveDependency(ctx, depNumber))
	}

	return item, nil
}

func (c *GitHubClient) resolveDependency(ctx context.Context, number int) Dependency {
	id := fmt.Sprintf("#%d", number)

	issue, _, err := c.client.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		log.Printf("[GitHub] Failed to resolve dependency %s: %v", id, err)
		return Dependency{ID: id, Summary: "dependency summary unavailable"}
	}

	return Dependency{ID: id, Summary: issue.GetTitle()}
}

// AttachFile posts the generated file as an issue comment with a fenced code
// block. The Issues API has no native file attachments.
func (c *GitHubClient) AttachFile(ctx context.Context, item *WorkItem, filename string, content []byte) (string, error) {
	number, err := parseIssueNumber(item.Ref)
	if err != nil {
		return "", err
	}

	body := fmt.Sprintf("Generated code attachment `%s`:\n\n```\n%s\n```", filename, string(content))
	comment, resp, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return "", classifyGitHubError(item.ID, resp, err)
	}

	return comment.GetHTMLURL(), nil
}

// parseIssueNumber accepts "42" and "#42" forms.
func parseIssueNumber(id string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(id), "#")
	number, err := strconv.Atoi(trimmed)
	if err != nil || number <= 0 {
		return 0, fmt.Errorf("invalid issue id: %s (expected issue number)", id)
	}
	return number, nil
}

// referencedIssues returns the distinct issue numbers referenced in body,
// excluding the item itself, in order of first appearance.
func referencedIssues(body string, self int) []int {
	seen := map[int]bool{self: true}
	var numbers []int

	for _, match := range issueRefPattern.FindAllStringSubmatch(body, -1) {
		number, err := strconv.Atoi(match[1])
		if err != nil || seen[number] {
			continue
		}
		seen[number] = true
		numbers = append(numbers, number)
	}

	return numbers
}

// extractAcceptanceCriteria returns the acceptance criteria section of an
// issue body, or empty when the body has no such heading.
func extractAcceptanceCriteria(body string) string {
	lines := strings.Split(body, "\n")

	start := -1
	for i, line := range lines {
		normalized := strings.ToLower(strings.TrimSpace(line))
		for _, heading := range acceptanceCriteriaHeadings {
			if normalized == heading {
				start = i + 1
				break
			}
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return ""
	}

	var section []string
	for _, line := range lines[start:] {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			break
		}
		section = append(section, line)
	}

	return strings.TrimSpace(strings.Join(section, "\n"))
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}
	return parts[0], parts[1], nil
}

func classifyGitHubError(id string, resp *github.Response, err error) error {
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return &NotFoundError{ID: id}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &AuthError{Backend: "github", Status: resp.StatusCode}
		case resp.StatusCode >= 500:
			return &TransientError{Op: "github issue " + id, Err: err}
		}
	}
	return &TransientError{Op: "github issue " + id, Err: err}
}
