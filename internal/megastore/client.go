// Package megastore wraps a MEGA consumer cloud-drive account as a small
// object store. The remote protocol requires a session handshake per
// operation, freshly created folders may not report children immediately,
// and there is no atomic replace; every exported operation therefore applies
// a bounded time budget and returns typed failures instead of raw transport
// errors, so callers can apply their own fallback policy.
package megastore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	mega "github.com/t3rm1n4l/go-mega"

	"github.com/studyhall/studyhall-backend/internal/config"
)

const (
	folderReadyAttempts = 5
	folderReadyDelay    = 500 * time.Millisecond
)

// UploadStrategy identifies which tier of the upload fallback chain produced
// a result. Surfaced for observability; callers never branch on it.
type UploadStrategy string

const (
	StrategyTargetFolder    UploadStrategy = "target-folder"
	StrategyReplaceByHandle UploadStrategy = "replace-by-handle"
	StrategyReplaceByName   UploadStrategy = "replace-by-name"
	StrategyFreshUpload     UploadStrategy = "fresh-upload"
	StrategyRootFallback    UploadStrategy = "root-fallback"
)

// UploadResult describes a successfully stored object.
type UploadResult struct {
	Handle     string         `json:"handle"`
	Name       string         `json:"name"`
	PublicURL  string         `json:"publicUrl,omitempty"`
	FolderPath string         `json:"folderPath"`
	Strategy   UploadStrategy `json:"strategy"`
}

// Entry is one item in a folder listing.
type Entry struct {
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
	Dir       bool      `json:"dir"`
}

// Client talks to a MEGA account. It owns the session lifecycle and exposes
// no shared mutable state; every operation opens its own session.
type Client struct {
	email    string
	password string
	timeout  time.Duration
	retries  int
	log      *logrus.Logger
}

// NewClient builds a client from configuration. A client with placeholder
// credentials is valid; all its operations report ErrNotConfigured.
func NewClient(cfg config.MegaConfig, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.SessionRetries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		email:    cfg.Email,
		password: cfg.Password,
		timeout:  timeout,
		retries:  retries,
		log:      log,
	}
}

// Enabled reports whether real credentials are configured.
func (c *Client) Enabled() bool {
	return !config.IsPlaceholder(c.email) && !config.IsPlaceholder(c.password)
}

// withSession logs in and runs fn under the operation time budget. When the
// budget is exceeded the operation is abandoned; the in-flight session keeps
// running in its goroutine and the remote side may still observe an effect.
func (c *Client) withSession(ctx context.Context, op string, fn func(m *mega.Mega) error) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		m := mega.New()
		m.SetRetries(c.retries)
		if err := m.Login(c.email, c.password); err != nil {
			done <- fmt.Errorf("%w: login: %s", ErrUnavailable, err)
			return
		}
		done <- fn(m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.log.WithField("op", op).Warn("mega operation exceeded its time budget, abandoning")
		return ErrTimeout
	}
}

// EnsureFolderPath walks from the root and creates any missing segment,
// returning only a degraded/failure signal; the leaf handle stays internal
// to the session that created it.
func (c *Client) EnsureFolderPath(ctx context.Context, segments []string) error {
	return c.withSession(ctx, "ensure-folder-path", func(m *mega.Mega) error {
		_, err := c.ensureFolderPath(m, segments)
		return err
	})
}

func (c *Client) ensureFolderPath(m *mega.Mega, segments []string) (*mega.Node, error) {
	node := m.FS.GetRoot()
	if node == nil {
		return nil, fmt.Errorf("%w: root folder not accessible", ErrUnavailable)
	}
	for _, name := range segments {
		child, err := c.childFolder(m, node, name)
		if err != nil {
			return nil, err
		}
		if child == nil {
			created, err := m.CreateDir(name, node)
			if err != nil {
				return nil, fmt.Errorf("%w: create folder %q: %s", ErrUnavailable, name, err)
			}
			c.waitForChildren(m, created)
			child = created
		}
		node = child
	}
	return node, nil
}

// lookupFolderPath walks an existing path without creating anything. A nil
// node with nil error means the path does not exist.
func (c *Client) lookupFolderPath(m *mega.Mega, segments []string) (*mega.Node, error) {
	node := m.FS.GetRoot()
	if node == nil {
		return nil, fmt.Errorf("%w: root folder not accessible", ErrUnavailable)
	}
	for _, name := range segments {
		child, err := c.childFolder(m, node, name)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		node = child
	}
	return node, nil
}

func (c *Client) childFolder(m *mega.Mega, parent *mega.Node, name string) (*mega.Node, error) {
	children, err := m.FS.GetChildren(parent)
	if err != nil {
		return nil, fmt.Errorf("%w: list children: %s", ErrUnavailable, err)
	}
	for _, child := range children {
		if child.GetType() == mega.FOLDER && child.GetName() == name {
			return child, nil
		}
	}
	return nil, nil
}

// waitForChildren polls a freshly created folder until its child list is
// readable. The remote tree is not immediately consistent after CreateDir.
func (c *Client) waitForChildren(m *mega.Mega, node *mega.Node) {
	for i := 0; i < folderReadyAttempts; i++ {
		if _, err := m.FS.GetChildren(node); err == nil {
			return
		}
		time.Sleep(folderReadyDelay)
	}
	c.log.Warn("folder children never became readable after creation")
}

// UploadBuffer stores data as a named object under the folder path, creating
// the path as needed. When the path cannot be provisioned the object is
// written to the account root instead so the content is never lost; the
// result records which strategy won.
func (c *Client) UploadBuffer(ctx context.Context, segments []string, name string, data []byte) (*UploadResult, error) {
	var result *UploadResult
	err := c.withSession(ctx, "upload-buffer", func(m *mega.Mega) error {
		res, err := c.uploadWithFallback(m, segments, name, data, StrategyTargetFolder)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) uploadWithFallback(m *mega.Mega, segments []string, name string, data []byte, strategy UploadStrategy) (*UploadResult, error) {
	folder, err := c.ensureFolderPath(m, segments)
	if err != nil {
		c.log.WithError(err).WithField("object", name).Warn("folder provisioning failed, falling back to root upload")
		root := m.FS.GetRoot()
		if root == nil {
			return nil, fmt.Errorf("%w: root folder not accessible", ErrUnavailable)
		}
		res, rootErr := c.uploadTo(m, root, "", name, data)
		if rootErr != nil {
			return nil, rootErr
		}
		res.Strategy = StrategyRootFallback
		return res, nil
	}
	res, err := c.uploadTo(m, folder, joinPath(segments), name, data)
	if err != nil {
		return nil, err
	}
	res.Strategy = strategy
	return res, nil
}

// uploadTo writes the buffer through a temp file; the SDK uploads from the
// filesystem only.
func (c *Client) uploadTo(m *mega.Mega, folder *mega.Node, folderPath, name string, data []byte) (*UploadResult, error) {
	tmp, err := os.CreateTemp("", "megastore-upload-*")
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	node, err := m.UploadFile(tmpName, folder, name, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: upload %q: %s", ErrUnavailable, name, err)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: upload %q returned no node", ErrUnavailable, name)
	}

	result := &UploadResult{
		Handle:     node.GetHash(),
		Name:       name,
		FolderPath: folderPath,
	}

	// Public links are an enhancement; their failure never fails the upload.
	if url, err := m.Link(node, true); err == nil {
		result.PublicURL = url
	} else {
		c.log.WithError(err).WithField("object", name).Warn("could not issue public link")
	}
	return result, nil
}

// UpdateObject replaces an object's content: delete the node at the known
// handle and re-upload. A stale handle degrades to find-by-name in the
// target folder, and finally to a plain upload, so the new content is always
// written somewhere reachable from the folder path.
func (c *Client) UpdateObject(ctx context.Context, handle string, segments []string, name string, data []byte) (*UploadResult, error) {
	var result *UploadResult
	err := c.withSession(ctx, "update-object", func(m *mega.Mega) error {
		strategy := StrategyFreshUpload

		if node := m.FS.HashLookup(handle); node != nil {
			if err := m.Delete(node, true); err != nil {
				c.log.WithError(err).WithField("handle", handle).Warn("could not delete object by handle")
			} else {
				strategy = StrategyReplaceByHandle
			}
		} else if folder, err := c.lookupFolderPath(m, segments); err == nil && folder != nil {
			if prior := c.childFile(m, folder, name); prior != nil {
				if err := m.Delete(prior, true); err != nil {
					c.log.WithError(err).WithField("object", name).Warn("could not delete object by name")
				} else {
					strategy = StrategyReplaceByName
				}
			}
		}

		res, err := c.uploadWithFallback(m, segments, name, data, strategy)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) childFile(m *mega.Mega, parent *mega.Node, name string) *mega.Node {
	children, err := m.FS.GetChildren(parent)
	if err != nil {
		return nil
	}
	for _, child := range children {
		if child.GetType() == mega.FILE && child.GetName() == name {
			return child
		}
	}
	return nil
}

// DownloadJSON fetches the object at handle and decodes it into v.
func (c *Client) DownloadJSON(ctx context.Context, handle string, v interface{}) error {
	return c.withSession(ctx, "download-json", func(m *mega.Mega) error {
		node := m.FS.HashLookup(handle)
		if node == nil {
			return fmt.Errorf("%w: handle %s", ErrObjectNotFound, handle)
		}

		tmp, err := os.CreateTemp("", "megastore-download-*")
		if err != nil {
			return fmt.Errorf("stage download: %w", err)
		}
		tmpName := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpName)

		if err := m.DownloadFile(node, tmpName, nil); err != nil {
			return fmt.Errorf("%w: download %s: %s", ErrUnavailable, handle, err)
		}
		raw, err := os.ReadFile(tmpName)
		if err != nil {
			return fmt.Errorf("stage download: %w", err)
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: %s", ErrDecode, err)
		}
		return nil
	})
}

// ListFolder returns the entries under a path. A path that does not exist
// yields an empty list, not an error: "no objects yet" is a normal state.
func (c *Client) ListFolder(ctx context.Context, segments []string) ([]Entry, error) {
	var entries []Entry
	err := c.withSession(ctx, "list-folder", func(m *mega.Mega) error {
		folder, err := c.lookupFolderPath(m, segments)
		if err != nil {
			return err
		}
		if folder == nil {
			return nil
		}
		children, err := m.FS.GetChildren(folder)
		if err != nil {
			return fmt.Errorf("%w: list children: %s", ErrUnavailable, err)
		}
		for _, child := range children {
			entries = append(entries, Entry{
				Name:      child.GetName(),
				Handle:    child.GetHash(),
				Size:      child.GetSize(),
				Timestamp: child.GetTimeStamp(),
				Dir:       child.GetType() == mega.FOLDER,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// IssuePublicLink requests a publicly reachable URL for an object.
func (c *Client) IssuePublicLink(ctx context.Context, handle string) (string, error) {
	var url string
	err := c.withSession(ctx, "issue-public-link", func(m *mega.Mega) error {
		node := m.FS.HashLookup(handle)
		if node == nil {
			return fmt.Errorf("%w: handle %s", ErrObjectNotFound, handle)
		}
		link, err := m.Link(node, true)
		if err != nil {
			return fmt.Errorf("%w: link %s: %s", ErrUnavailable, handle, err)
		}
		url = link
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// nodeRemover is the slice of a live session the delete path uses.
type nodeRemover interface {
	lookup(handle string) *mega.Node
	remove(node *mega.Node) error
}

type sessionNodes struct{ m *mega.Mega }

func (s sessionNodes) lookup(handle string) *mega.Node { return s.m.FS.HashLookup(handle) }
func (s sessionNodes) remove(node *mega.Node) error    { return s.m.Delete(node, true) }

// DeleteObject permanently removes an object. A handle that is already
// absent is success: the desired state is met.
func (c *Client) DeleteObject(ctx context.Context, handle string) error {
	return c.withSession(ctx, "delete-object", func(m *mega.Mega) error {
		return c.deleteObject(sessionNodes{m}, handle)
	})
}

func (c *Client) deleteObject(nodes nodeRemover, handle string) error {
	node := nodes.lookup(handle)
	if node == nil {
		c.log.WithField("handle", handle).Debug("delete target already absent, treating as success")
		return nil
	}
	if err := nodes.remove(node); err != nil {
		return fmt.Errorf("%w: delete %s: %s", ErrUnavailable, handle, err)
	}
	return nil
}

func joinPath(segments []string) string {
	path := ""
	for i, s := range segments {
		if i > 0 {
			path += "/"
		}
		path += s
	}
	return path
}
