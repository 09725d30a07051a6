package utils_test

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"attendance-backend/internal/core/utils"

	"github.com/stretchr/testify/assert"
)

func TestRunInPool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	queue := make(chan int, 10)

	for i := 0; i < 10; i++ {
		queue <- i
	}

	close(queue)

	output := make(chan utils.CompletedTask[int, string], 10)

	utils.RunInPool(worker, queue, output, 5)

	success := 0
	var failed []int
	for result := range output {
		if result.Error != nil {
			failed = append(failed, result.Input)
		} else {
			assert.Equal(t, fmt.Sprintf("%d-%d", result.Input, result.Input), result.Result)
			success++
		}
	}

	sort.Ints(failed)
	assert.Equal(t, 8, success)
	assert.Equal(t, []int{3, 7}, failed)
}

func TestRunInPoolEmptyQueue(t *testing.T) {
	queue := make(chan int)
	close(queue)

	output := make(chan utils.CompletedTask[int, int])
	utils.RunInPool(func(i int) (int, error) { return i, nil }, queue, output, 4)

	count := 0
	for range output {
		count++
	}
	assert.Zero(t, count)
}

func TestRunInPoolNonPositiveWorkers(t *testing.T) {
	queue := make(chan int, 3)
	for i := 0; i < 3; i++ {
		queue <- i
	}
	close(queue)

	output := make(chan utils.CompletedTask[int, int], 3)
	utils.RunInPool(func(i int) (int, error) { return i * 2, nil }, queue, output, 0)

	sum := 0
	for res := range output {
		sum += res.Result
	}
	assert.Equal(t, 6, sum)
}
