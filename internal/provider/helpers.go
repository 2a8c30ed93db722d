package provider

import (
	"io"
	"strconv"

	log "github.com/sirupsen/logrus"
)

func itoa(i int) string { return strconv.Itoa(i) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		log.Errorf("close response body error: %v", err)
	}
}
