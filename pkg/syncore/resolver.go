// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResolverConfig controls how a Resolver turns a ChangeRecord's content
// fields into indexable text or a skip decision.
type ResolverConfig struct {
	Collection      string
	ExcludeGlobs    []string
	MaxFileSizeBytes int64
	// RootDir is prepended to a relative ContentRef (or relative legacy
	// bare path) before it is read from disk; absolute paths are read as is.
	RootDir string
}

// DefaultExcludeGlobs lists the vendor/build-artifact directories the
// teacher's delta detector skips by default, plus file patterns for
// minified JS, lockfiles, images and archives. Every match, file pattern
// included, is reported as SkipReasonVendor.
var DefaultExcludeGlobs = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"dist/**",
	"build/**",
	"*.min.js",
	"*.lock",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.pdf", "*.zip", "*.tar", "*.gz",
}

// Resolver turns ChangeRecords into ResolvedItems: it decides, for each
// record, whether it should be skipped (and why), and if not, resolves its
// bytes to text via the record's declared content tier (plain, base64, or
// a filesystem reference).
type Resolver struct {
	cfg        ResolverConfig
	globCache  *lru.Cache[string, bool]
	binaryCache *lru.Cache[string, bool]
}

// NewResolver builds a Resolver. The exclude-glob verdict and the
// binary-sniff verdict are each memoized for up to 4096 distinct paths,
// which matters when the same directories recur across many lines in a
// large run.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 1 << 20
	}
	if len(cfg.ExcludeGlobs) == 0 {
		cfg.ExcludeGlobs = DefaultExcludeGlobs
	}
	globCache, err := lru.New[string, bool](4096)
	if err != nil {
		return nil, fmt.Errorf("building glob cache: %w", err)
	}
	binCache, err := lru.New[string, bool](4096)
	if err != nil {
		return nil, fmt.Errorf("building binary-sniff cache: %w", err)
	}
	return &Resolver{cfg: cfg, globCache: globCache, binaryCache: binCache}, nil
}

// Resolve turns one LineRecord into a ResolvedItem. It never returns an
// error for a record it can legitimately skip (vendor/binary/too-large);
// errors are reserved for invalid base64 content, I/O failures reading a
// ContentRef or legacy bare path, and a rename record with no new_path.
//
// A rename is identified under its new path (NewPath); OldObjectID carries
// the pre-rename identifier so the caller can remove it once the new
// identifier has been indexed.
func (r *Resolver) Resolve(lr LineRecord) (ResolvedItem, error) {
	item := ResolvedItem{
		Line: lr.Line,
		Op:   lr.Op,
		Repo: lr.Repo,
		Path: lr.Path,
	}

	if lr.Op == OpDelete {
		item.ObjectID = Identify(r.cfg.Collection, lr.Repo, lr.Path)
		return item, nil
	}

	effectivePath := lr.Path
	if lr.Op == OpRename {
		if lr.NewPath == "" {
			return ResolvedItem{}, fmt.Errorf("rename record for %q has no new_path", lr.Path)
		}
		item.Path = lr.NewPath
		item.OldObjectID = Identify(r.cfg.Collection, lr.Repo, lr.Path)
		effectivePath = lr.NewPath
	}
	item.ObjectID = Identify(r.cfg.Collection, lr.Repo, effectivePath)

	if lr.SkipIndex {
		item.Tier = TierSkip
		item.SkipReason = SkipReasonExplicit
		return item, nil
	}
	if r.matchesExclude(effectivePath) {
		item.Tier = TierSkip
		item.SkipReason = SkipReasonVendor
		return item, nil
	}
	if lr.Size > r.cfg.MaxFileSizeBytes {
		item.Tier = TierSkip
		item.SkipReason = SkipReasonTooLarge
		return item, nil
	}

	text, tier, reason, err := r.resolveText(lr, effectivePath)
	if err != nil {
		return ResolvedItem{}, err
	}
	if tier == TierSkip {
		item.Tier = TierSkip
		item.SkipReason = reason
		return item, nil
	}

	item.Text = text
	item.Tier = tier
	return item, nil
}

// resolveText implements the content tiers in priority order: an inline
// plain-text Content field wins, then ContentBase64, then a ContentRef
// pointing at a file under RootDir. path is the tree path content should
// be attributed to (lr.Path, or lr.NewPath for a rename), used to resolve
// a relative ContentRef/legacy path and to key the binary-sniff cache.
//
// With none of the three payload fields set, this is tier 5 (legacy): path
// itself names a file on disk, read exactly as a ContentRef would be.
func (r *Resolver) resolveText(lr LineRecord, path string) (string, ContentTier, SkipReason, error) {
	switch {
	case lr.Content != "":
		if looksBinary([]byte(lr.Content)) {
			return "", TierSkip, SkipReasonBinary, nil
		}
		return lr.Content, TierPlain, "", nil

	case lr.ContentBase64 != "":
		raw, err := base64.StdEncoding.DecodeString(lr.ContentBase64)
		if err != nil {
			return "", "", "", fmt.Errorf("decoding base64 content for %s: %w", path, err)
		}
		if r.isBinary(path, raw) {
			return "", TierSkip, SkipReasonBinary, nil
		}
		return string(raw), TierBase64, "", nil

	case lr.ContentRef != "":
		return r.readFromDisk(lr.ContentRef, path, TierReference)

	default:
		return r.readFromDisk(path, path, TierReference)
	}
}

// readFromDisk stats full (joined with RootDir when relative) before
// reading it, so an oversized file is skipped without ever being loaded
// into memory, then applies the same binary sniff a ContentRef read does.
// binaryKey is the tree path used to memoize the binary-sniff cache.
func (r *Resolver) readFromDisk(full, binaryKey string, tier ContentTier) (string, ContentTier, SkipReason, error) {
	if r.cfg.RootDir != "" && !filepath.IsAbs(full) {
		full = filepath.Join(r.cfg.RootDir, full)
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", "", "", fmt.Errorf("stating %s: %w", full, err)
	}
	if info.Size() > r.cfg.MaxFileSizeBytes {
		return "", TierSkip, SkipReasonTooLarge, nil
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		return "", "", "", fmt.Errorf("reading %s: %w", full, err)
	}
	if r.isBinary(binaryKey, raw) {
		return "", TierSkip, SkipReasonBinary, nil
	}
	return string(raw), tier, "", nil
}

// isBinary memoizes looksBinary by path, since repeated runs over the same
// tree re-check the same files whenever they change again.
func (r *Resolver) isBinary(path string, content []byte) bool {
	if v, ok := r.binaryCache.Get(path); ok {
		return v
	}
	v := looksBinary(content)
	r.binaryCache.Add(path, v)
	return v
}

// looksBinary applies the teacher's NUL-byte sniff over a bounded prefix
// of the content: a NUL in the first 8000 bytes marks it non-text.
func looksBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(content[:n], 0) != -1
}

// matchesExclude reports whether path matches any of the resolver's
// exclude globs, memoized per path since the same directories recur.
func (r *Resolver) matchesExclude(path string) bool {
	if v, ok := r.globCache.Get(path); ok {
		return v
	}
	v := false
	for _, g := range r.cfg.ExcludeGlobs {
		if globMatch(g, path) {
			v = true
			break
		}
	}
	r.globCache.Add(path, v)
	return v
}

// globMatch supports the subset of glob syntax the exclude list needs:
// a "/**" suffix matches the prefix directory and anything under it, a
// pattern without "/" is matched against the basename, and any other
// pattern is matched against the whole path with filepath.Match. A "**/"
// prefix gets no special handling ("**" then acts like "*").
func globMatch(pattern, path string) bool {
	path = strings.ReplaceAll(path, `\`, "/")
	pattern = strings.ReplaceAll(pattern, `\`, "/")

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	if !strings.Contains(pattern, "/") {
		// A bare pattern like "*.png" matches the basename anywhere in
		// the tree, not just at the root.
		ok, _ := filepath.Match(pattern, filepath.Base(path))
		return ok
	}
	ok, _ := filepath.Match(pattern, path)
	return ok
}
