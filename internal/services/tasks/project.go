package tasks

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/TheMichaelB/taskcrypt/internal/models"
)

// LoadProject fetches every task and subtask of a project as items with
// names and descriptions decrypted.
func (s *Service) LoadProject(ctx context.Context, projectID, projectName string) ([]models.Item, error) {
	items, err := s.LoadProjectRaw(ctx, projectID, projectName)
	if err != nil {
		return nil, err
	}

	if err := s.DecryptItems(ctx, items); err != nil {
		return nil, wrap("load project", "", err)
	}
	return items, nil
}

// LoadProjectRaw fetches a project's items as stored, without decrypting
// them. Each top-level task is followed by its subtasks, depth first.
func (s *Service) LoadProjectRaw(ctx context.Context, projectID, projectName string) ([]models.Item, error) {
	if projectName == "" {
		projectName, _ = s.ProjectName(projectID)
	}

	query := s.pageQuery()
	query.Set("project", projectID)
	query.Set("opt_fields", strings.Join(taskListFields, ","))

	var top []models.Task
	if err := s.transport.GetAll(ctx, "/tasks", query, &top); err != nil {
		return nil, wrap("load project", "", err)
	}

	seen := &seenSet{ids: make(map[string]struct{}, len(top))}
	for _, t := range top {
		seen.add(t.GID)
	}

	// Subtask trees are fetched concurrently and joined in task order.
	trees := make([][]models.Item, len(top))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i, t := range top {
		g.Go(func() error {
			trees[i] = s.subtasks(gctx, t.GID, projectName, 1, seen)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(top))
	for i, t := range top {
		items = append(items, models.ItemFromTask(t, projectName))
		items = append(items, trees[i]...)
	}

	s.logger.WithFields(map[string]interface{}{
		"project": projectID,
		"tasks":   len(top),
		"items":   len(items),
	}).Info("Loaded project")

	return items, nil
}

// subtasks walks the subtask tree below parentID. A branch that fails to
// load is skipped.
func (s *Service) subtasks(ctx context.Context, parentID, projectName string, depth int, seen *seenSet) []models.Item {
	if s.cfg.MaxDepth > 0 && depth > s.cfg.MaxDepth {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	query := s.pageQuery()
	query.Set("opt_fields", strings.Join(taskListFields, ","))

	var children []models.Task
	if err := s.transport.GetAll(ctx, taskPath(parentID)+"/subtasks", query, &children); err != nil {
		s.logger.WithError(err).WithField("task_id", parentID).Warn("Failed to load subtasks")
		return nil
	}

	var items []models.Item
	for _, child := range children {
		if !seen.add(child.GID) {
			continue
		}
		items = append(items, models.ItemFromSubtask(child, projectName, parentID, depth))
		items = append(items, s.subtasks(ctx, child.GID, projectName, depth+1, seen)...)
	}
	return items
}

// DecryptItems decrypts item names and descriptions in place. Values that
// are not tokens, or fail to decrypt, are kept as they are.
func (s *Service) DecryptItems(ctx context.Context, items []models.Item) error {
	if !s.crypto.HasPassword() {
		return nil
	}

	return s.fanOut(ctx, len(items), func(i int) {
		items[i].Task = s.crypto.DecryptIfEnvelope(items[i].Task)
		items[i].Description = s.crypto.DecryptIfEnvelope(items[i].Description)
	})
}

// fanOut runs fn for every index in [0, n) on at most MaxConcurrent
// goroutines.
func (s *Service) fanOut(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type seenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// add records id and reports whether it was new.
func (s *seenSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}
