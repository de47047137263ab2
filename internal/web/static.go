package web

import (
	"embed"
)

// staticFiles holds the embedded monitor page.
//
//go:embed static/*
var staticFiles embed.FS
