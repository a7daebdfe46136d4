package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NethermindEth/katana-go/node"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

const (
	exitOK = iota
	exitConfig
	exitFatal
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := new(node.Config)
	cmd := NewCmd(config, func(cmd *cobra.Command, _ []string) error {
		n, err := node.New(config, Version)
		if err != nil {
			return err
		}
		if _, err = fmt.Fprint(cmd.OutOrStdout(), greeting); err != nil {
			return err
		}
		n.PrintAccounts(cmd.OutOrStdout())
		return n.Run(cmd.Context())
	})

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInvalidFlags), errors.Is(err, node.ErrInvalidConfig):
		return exitConfig
	default:
		return exitFatal
	}
}
