package web

import "embed"

// TemplatesFS embeds the page layouts and the htmx partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and the toast script.
//
//go:embed static/*
var StaticFS embed.FS
