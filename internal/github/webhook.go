package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"teamflow/api/internal/store"
)

var taskRefPattern = regexp.MustCompile(`#(\d+)`)

var ErrBadSignature = errors.New("invalid webhook signature")

type Store interface {
	ProjectIDsByRepoFullName(ctx context.Context, fullName string) ([]int64, error)
	TaskIDInProject(ctx context.Context, taskID, projectID int64) (int64, error)
}

type ActivityLog interface {
	Append(ctx context.Context, uow *store.UnitOfWork, projectID, taskID, actorID int64, detail string) (store.ActivityEntry, error)
}

type Broadcaster interface {
	SendToProject(ctx context.Context, projectID int64, event string, payload any)
}

// WebhookService turns GitHub deliveries into project activity and
// live events. Repository webhooks fan out to every project tracking
// that repository; a failure in one project does not block the rest.
type WebhookService struct {
	secret     []byte
	mainBranch string
	st         Store
	activity   ActivityLog
	bcast      Broadcaster
}

func NewWebhookService(secret, mainBranch string, st Store, activity ActivityLog, bcast Broadcaster) *WebhookService {
	if mainBranch == "" {
		mainBranch = "main"
	}
	return &WebhookService{
		secret:     []byte(secret),
		mainBranch: mainBranch,
		st:         st,
		activity:   activity,
		bcast:      bcast,
	}
}

// VerifySignature checks the X-Hub-Signature-256 header against the
// shared secret in constant time.
func (s *WebhookService) VerifySignature(signature string, body []byte) error {
	if signature == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrBadSignature
	}
	return nil
}

type repoRef struct {
	FullName string `json:"full_name"`
}

type commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Author  struct {
		Name string `json:"name"`
	} `json:"author"`
}

type pushPayload struct {
	Ref        string  `json:"ref"`
	Compare    string  `json:"compare"`
	Repository repoRef `json:"repository"`
	Pusher     struct {
		Name string `json:"name"`
	} `json:"pusher"`
	HeadCommit *commit  `json:"head_commit"`
	Commits    []commit `json:"commits"`
}

type pullRequestPayload struct {
	Action      string  `json:"action"`
	Repository  repoRef `json:"repository"`
	PullRequest struct {
		Title  string `json:"title"`
		Body   string `json:"body"`
		Merged bool   `json:"merged"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		HTMLURL string `json:"html_url"`
		Base    struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

type issuesPayload struct {
	Action     string  `json:"action"`
	Repository repoRef `json:"repository"`
	Issue      struct {
		Title string `json:"title"`
		User  struct {
			Login string `json:"login"`
		} `json:"user"`
		HTMLURL string `json:"html_url"`
	} `json:"issue"`
}

// Result reports which projects a delivery touched.
type Result struct {
	Message    string  `json:"message"`
	ProjectIDs []int64 `json:"project_ids"`
}

// ProcessEvent dispatches one verified delivery by event name.
// Unhandled event types are acknowledged and dropped.
func (s *WebhookService) ProcessEvent(ctx context.Context, event string, body []byte) (Result, error) {
	var probe struct {
		Repository repoRef `json:"repository"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return Result{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	if probe.Repository.FullName == "" {
		return Result{Message: "no repository in payload"}, nil
	}

	projectIDs, err := s.st.ProjectIDsByRepoFullName(ctx, probe.Repository.FullName)
	if err != nil {
		return Result{}, err
	}
	if len(projectIDs) == 0 {
		return Result{Message: "repository not linked to a project"}, nil
	}

	for _, projectID := range projectIDs {
		var err error
		switch event {
		case "push":
			err = s.handlePush(ctx, projectID, body)
		case "pull_request":
			err = s.handlePullRequest(ctx, projectID, body)
		case "issues":
			err = s.handleIssues(ctx, projectID, body)
		}
		if err != nil {
			log.Printf("webhook: %s for project %d: %v", event, projectID, err)
		}
	}
	return Result{Message: "ok", ProjectIDs: projectIDs}, nil
}

func (s *WebhookService) handlePush(ctx context.Context, projectID int64, body []byte) error {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("decode push: %w", err)
	}
	branch := strings.TrimPrefix(p.Ref, "refs/heads/")

	s.bcast.SendToProject(ctx, projectID, "git_push", map[string]any{
		"repo":    p.Repository.FullName,
		"branch":  branch,
		"pusher":  p.Pusher.Name,
		"commits": p.Commits,
	})

	if branch != s.mainBranch {
		return nil
	}

	// Merges land on the main branch through pull requests; direct
	// pushes are the only ones that should annotate tasks here. The
	// pull_request handler covers the merged side.
	mergeFromPR := strings.Contains(p.Compare, "/pull/") ||
		(p.HeadCommit != nil && strings.Contains(p.HeadCommit.Message, "Merge pull request")) ||
		len(p.Commits) > 1
	if mergeFromPR {
		return nil
	}

	var firstErr error
	for _, c := range p.Commits {
		for _, taskID := range s.resolveTaskRefs(ctx, projectID, c.Message) {
			detail := "New commit: " + c.Message
			if _, err := s.activity.Append(ctx, nil, projectID, taskID, 0, detail); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		s.bcast.SendToProject(ctx, projectID, "git_commit", map[string]any{
			"message": c.Message,
			"author":  c.Author,
			"url":     c.URL,
		})
	}
	return firstErr
}

func (s *WebhookService) handlePullRequest(ctx context.Context, projectID int64, body []byte) error {
	var p pullRequestPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("decode pull_request: %w", err)
	}
	pr := p.PullRequest

	opened := p.Action == "opened"
	merged := p.Action == "closed" && pr.Merged && pr.Base.Ref == s.mainBranch
	if !opened && !merged {
		return nil
	}

	s.bcast.SendToProject(ctx, projectID, "git_event", map[string]any{
		"type":   "pull_request",
		"action": p.Action,
		"title":  pr.Title,
		"user":   pr.User.Login,
		"url":    pr.HTMLURL,
	})

	detail := "Pull request opened: " + pr.Title
	if merged {
		detail = "Pull request merged: " + pr.Title
	}

	text := pr.Title
	if pr.Body != "" {
		text += "\n" + pr.Body
	}
	var firstErr error
	for _, taskID := range s.resolveTaskRefs(ctx, projectID, text) {
		if _, err := s.activity.Append(ctx, nil, projectID, taskID, 0, detail); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *WebhookService) handleIssues(ctx context.Context, projectID int64, body []byte) error {
	var p issuesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("decode issues: %w", err)
	}
	s.bcast.SendToProject(ctx, projectID, "git_event", map[string]any{
		"type":   "issue",
		"action": p.Action,
		"title":  p.Issue.Title,
		"user":   p.Issue.User.Login,
		"url":    p.Issue.HTMLURL,
	})
	return nil
}

// resolveTaskRefs maps "#123" markers in text to task IDs that exist
// in the given project; references into other projects are dropped.
func (s *WebhookService) resolveTaskRefs(ctx context.Context, projectID int64, text string) []int64 {
	if text == "" {
		return nil
	}
	seen := make(map[int64]struct{})
	var ids []int64
	for _, match := range taskRefPattern.FindAllStringSubmatch(text, -1) {
		ref, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		taskID, err := s.st.TaskIDInProject(ctx, ref, projectID)
		if err != nil {
			log.Printf("webhook: resolve task ref #%d: %v", ref, err)
			continue
		}
		if taskID != 0 {
			ids = append(ids, taskID)
		}
	}
	return ids
}
