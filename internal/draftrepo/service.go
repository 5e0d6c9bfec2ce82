// Package draftrepo keeps the history of generated documents. Every
// completed generation commits the document's markdown into a per-proposal
// git repository, one file per artifact kind, so earlier versions survive
// regeneration and invalidation.
package draftrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"grantflow/api/internal/workflow"
)

// Version describes one committed snapshot of a generated document.
type Version struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) repoPath(proposalID string) string {
	return filepath.Join(s.baseDir, proposalID)
}

func (s *Service) proposalLock(proposalID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[proposalID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[proposalID] = lock
	return lock
}

func documentFile(kind workflow.Kind) string {
	return string(kind) + ".md"
}

// CommitDocument snapshots one generated document's markdown. The repo is
// initialized lazily on the first commit for a proposal.
func (s *Service) CommitDocument(proposalID string, kind workflow.Kind, markdown, author string) (Version, error) {
	lock := s.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(proposalID)
	if err != nil {
		return Version{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Version{}, fmt.Errorf("open worktree: %w", err)
	}

	filename := documentFile(kind)
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, filename), []byte(markdown), 0o644); err != nil {
		return Version{}, fmt.Errorf("write %s: %w", filename, err)
	}
	if _, err := worktree.Add(filename); err != nil {
		return Version{}, fmt.Errorf("git add %s: %w", filename, err)
	}

	hash, err := worktree.Commit(fmt.Sprintf("Generate %s", kind), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.grantflow.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Version{}, fmt.Errorf("commit %s: %w", filename, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Version{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersion(commitObj), nil
}

// History lists the committed versions of one document kind, newest first.
func (s *Service) History(proposalID string, kind workflow.Kind, limit int) ([]Version, error) {
	lock := s.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(proposalID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []Version{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Version{}, nil
		}
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	filename := documentFile(kind)
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &filename})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Version, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toVersion(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// DocumentAt returns the markdown of a document kind at a given commit.
func (s *Service) DocumentAt(proposalID string, kind workflow.Kind, hash string) (string, error) {
	lock := s.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(proposalID))
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}

	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return "", fmt.Errorf("resolve revision %s: %w", hash, err)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(documentFile(kind))
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", documentFile(kind), err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read file contents: %w", err)
	}
	return contents, nil
}

// Remove deletes a proposal's history repo entirely.
func (s *Service) Remove(proposalID string) error {
	lock := s.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()
	return os.RemoveAll(s.repoPath(proposalID))
}

func (s *Service) openOrInit(proposalID string) (*git.Repository, error) {
	path := s.repoPath(proposalID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func toVersion(commitObj *object.Commit) Version {
	return Version{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
