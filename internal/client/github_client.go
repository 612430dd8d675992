package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/worksim/api/internal/config"
	"github.com/worksim/api/internal/model"
)

const prClosingComment = "This pull request was submitted as part of a completed work simulation " +
	"and has been closed automatically. Thanks for your work!"

// PRProvider manages candidate pull requests on the code host
type PRProvider interface {
	CleanupPRAfterAssessment(ctx context.Context, prURL string) (*model.PRCleanupResult, error)
	FetchPRCIStatus(ctx context.Context, prURL string) (*model.PRCIStatus, error)
	IsConfigured() bool
}

// PRRef identifies a pull request
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// ParsePRURL parses https://github.com/{owner}/{repo}/pull/{number}
func ParsePRURL(raw string) (PRRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return PRRef{}, fmt.Errorf("invalid pull request url: %w", err)
	}
	if !strings.EqualFold(u.Host, "github.com") && !strings.EqualFold(u.Host, "www.github.com") {
		return PRRef{}, fmt.Errorf("unsupported pull request host %q", u.Host)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 4 || segs[2] != "pull" {
		return PRRef{}, fmt.Errorf("not a pull request url: %s", raw)
	}
	n, err := strconv.Atoi(segs[3])
	if err != nil || n <= 0 {
		return PRRef{}, fmt.Errorf("invalid pull request number %q", segs[3])
	}

	return PRRef{Owner: segs[0], Repo: segs[1], Number: n}, nil
}

// GitHubClient implements PRProvider on the GitHub REST API
type GitHubClient struct {
	client *github.Client
	token  string
}

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient(cfg *config.GitHubConfig) *GitHubClient {
	gh := github.NewClient(nil)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	return &GitHubClient{client: gh, token: cfg.Token}
}

// CleanupPRAfterAssessment closes the PR if it is still open and returns a
// snapshot of its final state
func (c *GitHubClient) CleanupPRAfterAssessment(ctx context.Context, prURL string) (*model.PRCleanupResult, error) {
	if !c.IsConfigured() {
		return &model.PRCleanupResult{
			Success: false,
			Action:  model.PRActionSkipped,
			Message: "GitHub token not configured",
		}, nil
	}

	ref, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}

	pr, _, err := c.client.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request: %w", err)
	}

	result := &model.PRCleanupResult{Success: true}
	switch {
	case pr.GetMerged():
		result.Action = model.PRActionAlreadyMerged
		result.Message = "Pull request was already merged"
	case pr.GetState() == "closed":
		result.Action = model.PRActionAlreadyClosed
		result.Message = "Pull request was already closed"
	default:
		comment := &github.IssueComment{Body: github.String(prClosingComment)}
		if _, _, err := c.client.Issues.CreateComment(ctx, ref.Owner, ref.Repo, ref.Number, comment); err != nil {
			return nil, fmt.Errorf("failed to comment on pull request: %w", err)
		}
		pr, _, err = c.client.PullRequests.Edit(ctx, ref.Owner, ref.Repo, ref.Number, &github.PullRequest{
			State: github.String("closed"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to close pull request: %w", err)
		}
		result.Action = model.PRActionClosed
		result.Message = "Pull request closed"
	}

	snapshot := snapshotFromPR(prURL, pr)
	if ci, err := c.ciStatus(ctx, ref, snapshot.HeadSHA); err == nil {
		snapshot.CIStatus = ci
	}
	result.PRSnapshot = snapshot

	return result, nil
}

// FetchPRCIStatus aggregates commit statuses and check runs of the PR head
func (c *GitHubClient) FetchPRCIStatus(ctx context.Context, prURL string) (*model.PRCIStatus, error) {
	ref, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}
	pr, _, err := c.client.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request: %w", err)
	}
	return c.ciStatus(ctx, ref, pr.GetHead().GetSHA())
}

func (c *GitHubClient) ciStatus(ctx context.Context, ref PRRef, sha string) (*model.PRCIStatus, error) {
	if sha == "" {
		return &model.PRCIStatus{State: model.CIStatusUnknown, Checks: []model.PRCheck{}}, nil
	}

	combined, _, err := c.client.Repositories.GetCombinedStatus(ctx, ref.Owner, ref.Repo, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch combined status: %w", err)
	}
	runs, _, err := c.client.Checks.ListCheckRunsForRef(ctx, ref.Owner, ref.Repo, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list check runs: %w", err)
	}

	checks := make([]model.PRCheck, 0)
	for _, s := range combined.Statuses {
		checks = append(checks, model.PRCheck{
			Name:       s.GetContext(),
			Status:     "completed",
			Conclusion: s.GetState(),
		})
	}
	for _, r := range runs.CheckRuns {
		checks = append(checks, model.PRCheck{
			Name:       r.GetName(),
			Status:     r.GetStatus(),
			Conclusion: r.GetConclusion(),
		})
	}

	return &model.PRCIStatus{
		State:      AggregateCIState(checks),
		TotalCount: len(checks),
		Checks:     checks,
	}, nil
}

// AggregateCIState folds individual checks into success, failure, pending
// or unknown
func AggregateCIState(checks []model.PRCheck) string {
	if len(checks) == 0 {
		return model.CIStatusUnknown
	}
	pending := false
	for _, ch := range checks {
		switch ch.Conclusion {
		case "failure", "error", "timed_out", "cancelled", "action_required":
			return model.CIStatusFailure
		case "pending":
			pending = true
		}
		if ch.Status != "" && ch.Status != "completed" {
			pending = true
		}
	}
	if pending {
		return model.CIStatusPending
	}
	return model.CIStatusSuccess
}

func snapshotFromPR(prURL string, pr *github.PullRequest) *model.PRSnapshot {
	state := pr.GetState()
	if pr.GetMerged() {
		state = "merged"
	}
	return &model.PRSnapshot{
		URL:          prURL,
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		State:        state,
		Merged:       pr.GetMerged(),
		HeadSHA:      pr.GetHead().GetSHA(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		Commits:      pr.GetCommits(),
		CapturedAt:   time.Now().UTC(),
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *GitHubClient) IsConfigured() bool {
	return c.token != ""
}
