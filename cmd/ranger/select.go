// Copyright (c) 2022 The Linna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/doublemo/ranger/cores/sd"
	"github.com/doublemo/ranger/kits/ranger"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/uber-go/tally/v4"
)

var errNoNode = errors.New("no node matches the selection")

func newSelectCommand(a *app) *cobra.Command {
	var (
		all     bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Print a node serving the service as JSON",
		Long: `Load the current members once and print the selected node record.

Examples:
  ranger select -s zk1:2181 -n prod --service billing -e live
  ranger select -s zk1:2181 -n prod --service billing --all | jq '.host'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			store, closeStore, err := ranger.Dial(ctx, a.log, a.config)
			if err != nil {
				return err
			}
			defer closeStore()

			return a.selectNodes(ctx, cmd.OutOrStdout(), store, all)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Print every matching node instead of one")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Give up when the store cannot be read within this time")
	return cmd
}

func (a *app) selectNodes(ctx context.Context, w io.Writer, store sd.Store, all bool) error {
	s, err := ranger.New(a.log, tally.NoopScope, store, a.config)
	if err != nil {
		return err
	}
	defer s.Shutdown()

	if err := s.Serve(ctx); err != nil {
		return err
	}

	var nodes []*sd.ServiceNode[ranger.ShardInfo]
	if all {
		nodes = s.SelectAll()
	} else if node := s.Select(); node != nil {
		nodes = append(nodes, node)
	}

	if len(nodes) < 1 {
		return errNoNode
	}

	enc := jsoniter.NewEncoder(w)
	for _, node := range nodes {
		record := sd.NewNodeRecord(node.Host(), node.Port(), node.Data(), node.Status(), node.LastUpdated())
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("write node: %w", err)
		}
	}
	return nil
}
