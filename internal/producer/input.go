package producer

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// ParseSampleCounts читает по одному числу точек на строку.
//
// Пустые строки и комментарии (#) пропускаются молча. Неразборчивые и
// неположительные значения пропускаются с предупреждением и учитываются
// в skipped: одна плохая строка не отменяет всю партию.
func ParseSampleCounts(r io.Reader, logger *slog.Logger) (counts []int, skipped int, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 {
			skipped++
			logger.Warn("skipping invalid sample count", "line", line, "value", text)
			continue
		}

		counts = append(counts, n)
	}

	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read sample counts: %w", err)
	}
	return counts, skipped, nil
}

// Partition делит бюджет точек на задачи по unitSize. Последняя задача
// получает остаток.
func Partition(total, unitSize int) []int {
	if total <= 0 || unitSize <= 0 {
		return nil
	}

	counts := make([]int, 0, (total+unitSize-1)/unitSize)
	for total > 0 {
		n := min(unitSize, total)
		counts = append(counts, n)
		total -= n
	}
	return counts
}
