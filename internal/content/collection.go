package content

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/rimkus-dev/sentiment/internal/mapsafe"
)

//go:embed post.schema.json
var postSchema string

var extensions = map[string]bool{".md": true, ".mdx": true}

// Load reads every post under baseDir, newest first. Posts that fail to
// parse are skipped and their errors joined into the returned error.
func Load(baseDir string) ([]Post, error) {
	schema, err := jsonschema.CompileString("post.v1.schema.json", postSchema)
	if err != nil {
		return nil, fmt.Errorf("content: compile schema: %w", err)
	}

	var (
		posts []Post
		errs  []error
	)

	err = filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		post, err := loadPost(schema, baseDir, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		posts = append(posts, post)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("content: walk %s: %w", baseDir, err)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].PubDate.Equal(posts[j].PubDate) {
			return posts[i].Slug < posts[j].Slug
		}
		return posts[i].PubDate.After(posts[j].PubDate)
	})

	return posts, errors.Join(errs...)
}

func loadPost(schema *jsonschema.Schema, baseDir, path string) (Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Post{}, err
	}

	return Parse(schema, slugFor(baseDir, path), data)
}

// Parse decodes a single post. A nil schema skips validation.
func Parse(schema *jsonschema.Schema, slug string, data []byte) (Post, error) {
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return Post{}, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(meta, &raw); err != nil {
		return Post{}, fmt.Errorf("invalid front matter: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	jsonCompatible(raw)

	if schema != nil {
		if err := schema.Validate(raw); err != nil {
			return Post{}, fmt.Errorf("front matter validation failed: %w", err)
		}
	}

	date, err := parseDate(raw["pubDate"])
	if err != nil {
		return Post{}, err
	}

	return Post{
		PubDate:     date,
		Slug:        slug,
		Title:       mapsafe.Get(raw, "title", ""),
		Description: mapsafe.Get(raw, "description", ""),
		Category:    Category(mapsafe.Get(raw, "category", string(CategoryMisc))),
		Body:        body,
	}, nil
}

// jsonCompatible replaces the timestamps YAML decodes unquoted dates into
// with their RFC 3339 form, since the schema validator only accepts JSON
// types.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case map[string]any:
		for k, e := range t {
			t[k] = jsonCompatible(e)
		}
	case []any:
		for i, e := range t {
			t[i] = jsonCompatible(e)
		}
	}
	return v
}

// slugFor returns the post id: its path under baseDir without extension,
// lower-cased, with spaces turned into dashes.
func slugFor(baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))

	return strings.ReplaceAll(strings.ToLower(rel), " ", "-")
}
