package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/oarmstrong95/slack-bot/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
