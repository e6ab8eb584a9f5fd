package posts

import (
	"time"

	"github.com/inkpress/inkpress/internal/rbac"
)

// requiredForEntering lists the global action needed to move a post into to.
// Entering published or archived is reserved to publishers.
func requiredForEntering(to Status) (rbac.Action, bool) {
	switch to {
	case StatusPublished, StatusArchived:
		return rbac.ActionPublishPosts, true
	default:
		return "", false
	}
}

// authorizeCreate checks that p may create a post starting in status.
func authorizeCreate(authz rbac.Authorizer, p *rbac.Principal, status Status) error {
	if err := authz.Authorize(p, rbac.ActionCreatePosts, nil); err != nil {
		return err
	}
	if action, ok := requiredForEntering(status); ok {
		return authz.Authorize(p, action, nil)
	}
	return nil
}

// authorizeEdit checks the ownership-scoped edit permission on post.
func authorizeEdit(authz rbac.Authorizer, p *rbac.Principal, post *Post) error {
	return authz.Authorize(p, rbac.ActionEditPosts, post)
}

// authorizeTransition checks that p may move post from its current status to
// to. Keeping the current status needs nothing beyond the edit permission.
func authorizeTransition(authz rbac.Authorizer, p *rbac.Principal, post *Post, to Status) error {
	if err := authorizeEdit(authz, p, post); err != nil {
		return err
	}
	if post.Status == to {
		return nil
	}
	if action, ok := requiredForEntering(to); ok {
		return authz.Authorize(p, action, nil)
	}
	return nil
}

// applyStatus moves post to status. published_at is stamped on the first
// entry into published and never touched again.
func applyStatus(post *Post, to Status, now time.Time) {
	post.Status = to
	if to == StatusPublished && post.PublishedAt == nil {
		stamp := now
		post.PublishedAt = &stamp
	}
}

// StatusOptions returns the statuses p may pick for post. post is nil on create.
func StatusOptions(p *rbac.Principal, post *Post) []Status {
	canPublish := rbac.Can(p, rbac.ActionPublishPosts, nil)
	if post == nil {
		if canPublish {
			return []Status{StatusDraft, StatusPublished}
		}
		return []Status{StatusDraft}
	}
	if canPublish {
		return Statuses()
	}
	opts := []Status{StatusDraft}
	if post.Status != StatusDraft {
		opts = append(opts, post.Status)
	}
	return opts
}
