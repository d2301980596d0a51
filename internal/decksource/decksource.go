package decksource

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrDeckFileMissing is returned when the checkout holds no card file at the
// configured location.
var ErrDeckFileMissing = errors.New("decksource: card file not found in checkout")

// Source describes where the card file lives.
type Source struct {
	// Path is the card file when GitURL is empty.
	Path string
	// GitURL, when set, is cloned or pulled into CheckoutDir and the card file
	// is read from File inside the checkout.
	GitURL      string
	CheckoutDir string
	File        string
}

// Resolve returns the local path of the card file, syncing the git
// repository first when one is configured. A failed sync falls back to an
// existing checkout so studying still works offline. The card file must be a
// regular file inside the checkout.
func Resolve(src Source, logger *slog.Logger) (string, error) {
	if src.GitURL == "" {
		return src.Path, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	checkout, err := LocalPath(src.CheckoutDir, src.GitURL)
	if err != nil {
		return "", err
	}
	deckFile, err := fileInCheckout(checkout, src.File)
	if err != nil {
		return "", err
	}

	if err := Sync(src.GitURL, checkout, logger); err != nil {
		if _, statErr := os.Stat(filepath.Join(checkout, ".git")); statErr != nil {
			return "", err
		}
		logger.Warn("Using existing deck checkout after failed sync", "url", src.GitURL, "checkout", checkout, "error", err)
	}

	info, err := os.Stat(deckFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("%w: %s", ErrDeckFileMissing, deckFile)
	case err != nil:
		return "", fmt.Errorf("failed to check card file %s: %w", deckFile, err)
	case !info.Mode().IsRegular():
		return "", fmt.Errorf("%w: %s is not a regular file", ErrDeckFileMissing, deckFile)
	}

	logger.Info("Deck resolved from git", "url", src.GitURL, "file", deckFile)
	return deckFile, nil
}

// fileInCheckout joins name onto checkout, refusing names that leave it.
func fileInCheckout(checkout, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("card file %q must be a relative path inside the checkout", name)
	}
	return filepath.Join(checkout, name), nil
}

// Sync brings the checkout at dir up to date with url, cloning it on first
// use.
func Sync(url, dir string, logger *slog.Logger) error {
	_, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return clone(url, dir, logger)
	case err != nil:
		return fmt.Errorf("failed to check checkout %s: %w", dir, err)
	}
	return pull(dir, logger)
}

func clone(url, dir string, logger *slog.Logger) error {
	logger.Info("Cloning deck repository", "url", url, "checkout", dir)
	if _, err := git.PlainClone(dir, false, &git.CloneOptions{URL: url}); err != nil {
		// Leave no half-cloned directory behind for the next run to pull.
		_ = os.RemoveAll(dir)
		return fmt.Errorf("failed to clone deck repository %s: %w", url, err)
	}
	return nil
}

func pull(dir string, logger *slog.Logger) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open deck checkout %s: %w", dir, err)
	}
	tree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree of %s: %w", dir, err)
	}

	err = tree.Pull(&git.PullOptions{RemoteName: "origin"})
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		logger.Debug("Deck checkout already up to date", "checkout", dir)
	case err != nil:
		return fmt.Errorf("failed to pull deck checkout %s: %w", dir, err)
	default:
		logger.Info("Pulled deck updates", "checkout", dir)
	}
	return nil
}

// LocalPath maps a repository URL to a checkout directory under baseDir:
// baseDir/<host>/<repository path without .git>. Both http(s) URLs and
// scp-style "git@host:owner/repo.git" addresses are accepted.
func LocalPath(baseDir, repoURL string) (string, error) {
	host, repoPath, ok := splitRepoURL(repoURL)
	if !ok {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
	if host == "" || repoPath == "" || !filepath.IsLocal(filepath.FromSlash(repoPath)) {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return filepath.Join(baseDir, host, filepath.FromSlash(repoPath)), nil
}

func splitRepoURL(repoURL string) (host, repoPath string, ok bool) {
	if u, err := url.Parse(repoURL); err == nil && (u.Scheme == "https" || u.Scheme == "http") {
		return u.Host, u.Path, true
	}
	// scp-style: user@host:path
	userHost, repoPath, found := strings.Cut(repoURL, ":")
	if !found || strings.Contains(repoPath, ":") {
		return "", "", false
	}
	_, host, found = strings.Cut(userHost, "@")
	if !found || strings.ContainsAny(host, "/@") {
		return "", "", false
	}
	return host, repoPath, true
}
