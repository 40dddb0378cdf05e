package api

import (
	"archive/zip"
	"bufio"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pbelyaev/kinoscribe/internal/config"
	"github.com/pbelyaev/kinoscribe/internal/logger"
)

func (s *RESTServer) handleDownloadLogs(c *gin.Context) {
	c.Header("Content-Disposition", "attachment; filename=kinoscribe_logs.zip")
	c.Header("Content-Type", "application/zip")

	zipWriter := zip.NewWriter(c.Writer)
	defer zipWriter.Close()

	logDir := config.Get().LogDir
	err := filepath.Walk(logDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		// .txt extension for Windows compatibility
		baseName := filepath.Base(path)
		if strings.HasSuffix(baseName, ".log") {
			baseName = strings.TrimSuffix(baseName, ".log") + ".txt"
		}
		header.Name = baseName
		header.Method = zip.Deflate

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})

	if err != nil {
		logger.Errorf("Failed to zip logs: %v", err)
	}
}

func (s *RESTServer) handleRecentLogs(c *gin.Context) {
	logFile := filepath.Join(config.Get().LogDir, "kinoscribe.log")

	file, err := os.Open(logFile)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, []map[string]interface{}{})
			return
		}
		respondWithError(c, http.StatusInternalServerError, ErrMsgInternalError, err)
		return
	}
	defer file.Close()

	var lines []string
	fileScanner := bufio.NewScanner(file)
	for fileScanner.Scan() {
		lines = append(lines, fileScanner.Text())
	}
	if err := fileScanner.Err(); err != nil {
		respondWithError(c, http.StatusInternalServerError, ErrMsgInternalError, err)
		return
	}

	// Keep the last 100 lines
	start := 0
	if len(lines) > 100 {
		start = len(lines) - 100
	}

	// Format: timestamp [LEVEL] message
	var logEntries []map[string]interface{}
	for _, line := range lines[start:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) >= 3 {
			logEntries = append(logEntries, map[string]interface{}{
				"timestamp": parts[0],
				"level":     strings.Trim(parts[1], "[]"),
				"message":   parts[2],
			})
		}
	}

	c.JSON(http.StatusOK, logEntries)
}
