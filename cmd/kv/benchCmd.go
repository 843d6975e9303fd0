package kv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cedarkv/cedar/client"
	cmdUtil "github.com/cedarkv/cedar/cmd/util"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark SET/GET latency against a cedar server",
		RunE:    runBench,
		PreRunE: processBenchConfig,
	}

	benchThreads   = 10
	benchRequests  = 10000
	benchValueSize = 64
)

func init() {
	key := "threads"
	benchCmd.Flags().Int(key, 10, cmdUtil.WrapString("Number of concurrent connections to use"))
	key = "requests"
	benchCmd.Flags().Int(key, 10000, cmdUtil.WrapString("Total number of requests per benchmark"))
	key = "value-size"
	benchCmd.Flags().Int(key, 64, cmdUtil.WrapString("Size of the values written by the SET benchmark (in bytes)"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	benchThreads = viper.GetInt("threads")
	benchRequests = viper.GetInt("requests")
	benchValueSize = viper.GetInt("value-size")

	return nil
}

func runBench(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	config := cmdUtil.GetClientConfig()

	connections := client.NewPool(ctx, config.Addr(), benchThreads)
	defer connections.Close(ctx)

	registry := gometrics.NewRegistry()
	value := make([]byte, benchValueSize)

	setTimer := gometrics.GetOrRegisterTimer("set", registry)
	err := runBenchOp(ctx, connections, setTimer, func(c *client.Client, i int) error {
		return c.Set("__bench"+strconv.Itoa(i), value)
	})
	if err != nil {
		return err
	}

	getTimer := gometrics.GetOrRegisterTimer("get", registry)
	err = runBenchOp(ctx, connections, getTimer, func(c *client.Client, i int) error {
		_, _, err := c.Get("__bench" + strconv.Itoa(i))
		return err
	})
	if err != nil {
		return err
	}

	printTimer("SET", setTimer)
	printTimer("GET", getTimer)
	return nil
}

// runBenchOp spreads benchRequests calls of op over the pooled connections
func runBenchOp(ctx context.Context, connections *client.Pool, timer gometrics.Timer, op func(c *client.Client, i int) error) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	perThread := benchRequests / benchThreads
	wg.Add(benchThreads)

	for t := 0; t < benchThreads; t++ {
		go func(thread int) {
			defer wg.Done()

			c, err := connections.Get(ctx)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			defer connections.Put(ctx, c)

			for i := 0; i < perThread; i++ {
				n := thread*perThread + i
				start := time.Now()
				err := op(c, n)
				timer.UpdateSince(start)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(t)
	}

	wg.Wait()
	return firstErr
}

func printTimer(name string, timer gometrics.Timer) {
	toMicros := func(ns float64) float64 { return ns / float64(time.Microsecond) }

	fmt.Printf("%-4s  %d ops\n", name, timer.Count())
	fmt.Printf("      mean %8.1f µs\n", toMicros(timer.Mean()))
	fmt.Printf("      p50  %8.1f µs\n", toMicros(timer.Percentile(0.50)))
	fmt.Printf("      p99  %8.1f µs\n", toMicros(timer.Percentile(0.99)))
	fmt.Printf("      max  %8.1f µs\n", toMicros(float64(timer.Max())))
	fmt.Printf("      rate %8.0f ops/sec\n", timer.RateMean())
}
