package web

import "embed"

// TemplatesFS embute os templates HTML renderizados no servidor.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embute os arquivos estáticos (css).
//
//go:embed static/*
var StaticFS embed.FS
