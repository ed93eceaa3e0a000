// Package lmssvc imports courses, students and groups from a learning management system.
package lmssvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
)

type (
	Course struct {
		LMSID string
		Code  string
		Name  string
	}

	Student struct {
		LMSID    string
		Name     string
		Email    string
		Username string
	}

	Group struct {
		LMSID string
		Name  string
	}

	// Provider is a read-only LMS client.
	Provider interface {
		Courses(ctx context.Context) ([]Course, error)
		Students(ctx context.Context, courseID string) ([]Student, error)
		Groups(ctx context.Context, courseID string) ([]Group, error)
		GroupMembers(ctx context.Context, groupID string) ([]Student, error)
	}
)

// NewProvider returns nil when no LMS is configured.
func NewProvider(conf core.LMSConfig) (Provider, error) {
	switch conf.Provider {
	case "":
		return nil, nil
	case "canvas":
		if conf.BaseURL == "" || conf.APIKey == "" {
			return nil, errors.New("canvas provider requires a base URL and an API key")
		}
		return NewCanvasClient(&http.Client{Timeout: 30 * time.Second}, conf.BaseURL, conf.APIKey), nil
	default:
		return nil, errors.Errorf("unsupported lms provider %q", conf.Provider)
	}
}

type canvasClient struct {
	client  *http.Client
	baseURL string
	token   string
}

var _ Provider = (*canvasClient)(nil)

// NewCanvasClient talks to the Canvas REST API; baseURL includes the API prefix (e.g. https://x/api/v1).
func NewCanvasClient(client *http.Client, baseURL, token string) *canvasClient {
	return &canvasClient{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

type (
	canvasCourse struct {
		ID         json.Number `json:"id"`
		CourseCode string      `json:"course_code"`
		Name       string      `json:"name"`
	}
	canvasUser struct {
		ID      json.Number `json:"id"`
		Name    string      `json:"name"`
		Email   string      `json:"email"`
		LoginID string      `json:"login_id"`
	}
	canvasGroup struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	}
)

func (c *canvasClient) Courses(ctx context.Context) ([]Course, error) {
	var raw []canvasCourse
	if err := c.getAll(ctx, "/courses", nil, &raw); err != nil {
		return nil, errors.Wrap(err, "fetching canvas courses")
	}
	courses := make([]Course, 0, len(raw))
	for _, r := range raw {
		courses = append(courses, Course{LMSID: r.ID.String(), Code: r.CourseCode, Name: r.Name})
	}
	return courses, nil
}

func (c *canvasClient) Students(ctx context.Context, courseID string) ([]Student, error) {
	var raw []canvasUser
	q := url.Values{"enrollment_type[]": {"student"}}
	if err := c.getAll(ctx, "/courses/"+url.PathEscape(courseID)+"/users", q, &raw); err != nil {
		return nil, errors.Wrap(err, "fetching canvas students")
	}
	return toStudents(raw), nil
}

func (c *canvasClient) Groups(ctx context.Context, courseID string) ([]Group, error) {
	var raw []canvasGroup
	if err := c.getAll(ctx, "/courses/"+url.PathEscape(courseID)+"/groups", nil, &raw); err != nil {
		return nil, errors.Wrap(err, "fetching canvas groups")
	}
	groups := make([]Group, 0, len(raw))
	for _, r := range raw {
		groups = append(groups, Group{LMSID: r.ID.String(), Name: r.Name})
	}
	return groups, nil
}

func (c *canvasClient) GroupMembers(ctx context.Context, groupID string) ([]Student, error) {
	var raw []canvasUser
	if err := c.getAll(ctx, "/groups/"+url.PathEscape(groupID)+"/users", nil, &raw); err != nil {
		return nil, errors.Wrap(err, "fetching canvas group members")
	}
	return toStudents(raw), nil
}

func toStudents(raw []canvasUser) []Student {
	students := make([]Student, 0, len(raw))
	for _, r := range raw {
		students = append(students, Student{LMSID: r.ID.String(), Name: r.Name, Email: r.Email, Username: r.LoginID})
	}
	return students
}

// getAll follows the `Link: <...>; rel="next"` pagination header and appends every page to dest.
func (c *canvasClient) getAll(ctx context.Context, path string, q url.Values, dest interface{}) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("per_page", "100")
	next := c.baseURL + path + "?" + q.Encode()

	var all []json.RawMessage
	for page := 0; next != "" && page < 100; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		var items []json.RawMessage
		err = decodeResponse(res, &items)
		if err != nil {
			return err
		}
		all = append(all, items...)
		next = nextLink(res.Header.Get("Link"))
	}

	buf, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, dest)
}

func decodeResponse(res *http.Response, dest interface{}) error {
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return errors.Wrap(json.NewDecoder(res.Body).Decode(dest), "decoding response")
}

func nextLink(header string) string {
	for _, link := range strings.Split(header, ",") {
		parts := strings.Split(link, ";")
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts[1:] {
			if strings.TrimSpace(p) == `rel="next"` {
				return strings.Trim(strings.TrimSpace(parts[0]), "<>")
			}
		}
	}
	return ""
}
