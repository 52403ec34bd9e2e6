package handlers

import (
	"html/template"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

const pageTemplates = `
{{define "head"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>{{.Title}}</title></head><body>{{end}}

{{define "foot"}}</body></html>{{end}}

{{define "login"}}{{template "head" .}}
<main>
  <h1>Sign in</h1>
  {{with .Error}}<div class="banner error" role="alert">{{.}}</div>{{end}}
  <form method="post" action="/auth/login">
    <input type="hidden" name="redirect" value="{{.Redirect}}">
    <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
    {{with index .FieldErrors "email"}}<p class="field-error">{{.}}</p>{{end}}
    <label>Password <input type="password" name="password" required></label>
    {{with index .FieldErrors "password"}}<p class="field-error">{{.}}</p>{{end}}
    <button type="submit">Sign in</button>
  </form>
  {{if .RegistrationEnabled}}<p><a href="/register">Create an account</a></p>{{end}}
</main>
{{template "foot" .}}{{end}}

{{define "register"}}{{template "head" .}}
<main>
  <h1>Create an account</h1>
  {{with .Error}}<div class="banner error" role="alert">{{.}}</div>{{end}}
  <form method="post" action="/auth/register">
    <input type="hidden" name="redirect" value="{{.Redirect}}">
    <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
    {{with index .FieldErrors "email"}}<p class="field-error">{{.}}</p>{{end}}
    <label>Password <input type="password" name="password" required></label>
    {{with index .FieldErrors "password"}}<p class="field-error">{{.}}</p>{{end}}
    <label>First name <input type="text" name="first_name"></label>
    <label>Last name <input type="text" name="last_name"></label>
    <button type="submit">Register</button>
  </form>
  <p><a href="/login">Already registered? Sign in</a></p>
</main>
{{template "foot" .}}{{end}}

{{define "home"}}{{template "head" .}}
<main>
  <h1>Welcome</h1>
  {{if .User}}<p>Signed in as {{.User.DisplayName}}. <a href="/dashboard">Dashboard</a></p>
  <form method="post" action="/auth/logout"><button type="submit">Sign out</button></form>
  {{else}}<p><a href="/login">Sign in</a></p>{{end}}
</main>
{{template "foot" .}}{{end}}

{{define "dashboard"}}{{template "head" .}}
<main>
  <h1>Dashboard</h1>
  <p>Hello {{.User.DisplayName}}</p>
  {{if .User.IsSuperuser}}<p><a href="/admin">Administration</a></p>{{end}}
  <form method="post" action="/auth/logout"><button type="submit">Sign out</button></form>
</main>
{{template "foot" .}}{{end}}

{{define "admin"}}{{template "head" .}}
<main>
  <h1>Administration</h1>
  <p>Signed in as {{.User.Email}}</p>
</main>
{{template "foot" .}}{{end}}
`

var pages = template.Must(template.New("pages").Parse(pageTemplates))

// renderPage writes one of the server-rendered pages
func renderPage(c *gin.Context, code int, name string, data gin.H) {
	for _, key := range []string{"Title", "Error", "Redirect", "Email"} {
		if _, ok := data[key]; !ok {
			data[key] = ""
		}
	}
	if _, ok := data["FieldErrors"]; !ok {
		data["FieldErrors"] = map[string]string{}
	}
	c.Render(code, render.HTML{Template: pages, Name: name, Data: data})
}
