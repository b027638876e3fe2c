package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/edgerules/internal/models"
)

const usersSpec = `
openapi: 3.0.0
info:
  title: Users API
  version: 1.2.0
servers:
  - url: /relative
  - url: https://users.internal.example.com
paths:
  /users:
    get:
      responses:
        '200':
          description: Success
    post:
      responses:
        '201':
          description: Created
  /users/{id}:
    parameters:
      - name: id
        in: path
        required: true
        schema:
          type: string
    get:
      responses:
        '200':
          description: Success
    delete:
      responses:
        '204':
          description: Deleted
  /users/{id}/posts/{postId}:
    parameters:
      - name: id
        in: path
        required: true
        schema:
          type: string
      - name: postId
        in: path
        required: true
        schema:
          type: string
    get:
      responses:
        '200':
          description: Success
`

func TestImportRewrites(t *testing.T) {
	p := NewParser()

	result, err := p.ImportRewrites(usersSpec, "https://api.example.com/", "/api")
	require.NoError(t, err)

	assert.Equal(t, "Users API", result.Title)
	assert.Equal(t, "1.2.0", result.Version)
	assert.Equal(t, "https://api.example.com", result.Upstream)
	assert.Equal(t, []models.RewriteRule{
		{Source: "/api/users", Destination: "https://api.example.com/users"},
		{Source: "/api/users/:id", Destination: "https://api.example.com/users/:id"},
		{Source: "/api/users/:id/posts/:postId", Destination: "https://api.example.com/users/:id/posts/:postId"},
	}, result.Rules)
	assert.Equal(t, []string{"GET", "POST"}, result.Methods["/api/users"])
	assert.Equal(t, []string{"GET", "DELETE"}, result.Methods["/api/users/:id"])
}

func TestImportRewrites_ServerURLFallback(t *testing.T) {
	p := NewParser()

	result, err := p.ImportRewrites(usersSpec, "", "")
	require.NoError(t, err)

	require.NotEmpty(t, result.Rules)
	assert.Equal(t, "/users", result.Rules[0].Source)
	assert.Equal(t, "https://users.internal.example.com/users", result.Rules[0].Destination)
}

func TestImportRewrites_Errors(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name     string
		content  string
		upstream string
	}{
		{"invalid yaml", "openapi: [", "https://api.example.com"},
		{"missing info", "openapi: 3.0.0\npaths: {}\n", "https://api.example.com"},
		{"relative upstream", usersSpec, "/upstream"},
		{"no upstream and no server", "openapi: 3.0.0\ninfo:\n  title: x\n  version: '1'\npaths: {}\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ImportRewrites(tt.content, tt.upstream, "")
			assert.Error(t, err)
		})
	}
}

func TestConvertPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/users", "/users"},
		{"/users/{id}", "/users/:id"},
		{"/orgs/{org-id}/repos/{repo.name}", "/orgs/:org_id/repos/:repo_name"},
		{"/v/{1st}", "/v/:p1st"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertPath(tt.in))
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	assert.Equal(t, "", normalizeBasePath(""))
	assert.Equal(t, "/api", normalizeBasePath("api"))
	assert.Equal(t, "/api", normalizeBasePath("/api/"))
}
