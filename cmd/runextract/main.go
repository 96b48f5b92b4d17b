package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/examlens/internal/app"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
	"github.com/joseph-ayodele/examlens/internal/extract"
	"github.com/joseph-ayodele/examlens/internal/ingest"
)

func main() {
	method := flag.String("method", "", "auto | native | pdftotext | ocr (default from config)")
	logLevel := flag.String("log-level", "info", "debug | info | warn | error")
	flag.Parse()

	logger := app.NewLogger(*logLevel)
	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runextract [-method auto|native|pdftotext|ocr] <exam.pdf|exam.txt>")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig("")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if *method != "" {
		cfg.Extract.Method = *method
	}
	if err := cfg.Validate(false); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	doc, err := ingest.FromPath(flag.Arg(0), 0)
	if err != nil {
		logger.Error("read document", "path", flag.Arg(0), "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	text, err := app.NewExtractor(cfg.Extract, logger).Extract(ctx, doc)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed", "error", err, "stage", common.StageOf(err), "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"method", text.Method,
		"pages", text.PageCount(),
		"questions", joinIDs(extract.DetectQuestions(text)),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(text.Text())
}

func joinIDs(ids []entity.QuestionID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
