// Command payctl drives the payment flow from a terminal: start an STK push
// and wait for the handset to confirm, or check an existing checkout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sereniyou/payments/pkg/paymentclient"
)

var Version = "dev"

func main() {
	v := viper.New()
	v.SetEnvPrefix("PAYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "payctl",
		Short:         "Start and track M-Pesa subscription payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("base-url", "http://localhost:8888/api", "Payment API base URL including route prefix (env PAYCTL_BASE_URL)")
	rootCmd.PersistentFlags().String("token", "", "User access token (env PAYCTL_TOKEN)")
	_ = v.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = v.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.AddCommand(payCmd(v))
	rootCmd.AddCommand(statusCmd(v))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient(v *viper.Viper) (*paymentclient.Client, error) {
	token := v.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("an access token is required (--token or PAYCTL_TOKEN)")
	}
	return paymentclient.New(v.GetString("base-url"), token), nil
}

func payCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Send an STK push and wait for the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(v)
			if err != nil {
				return err
			}
			phone, _ := cmd.Flags().GetString("phone")
			plan, _ := cmd.Flags().GetString("plan")
			noWait, _ := cmd.Flags().GetBool("no-wait")

			res, err := client.Initiate(cmd.Context(), phone, plan)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Message)
			fmt.Fprintf(out, "Checkout: %s\n", res.CheckoutRequestID)
			if noWait {
				return nil
			}

			poller := paymentclient.NewPoller(client)
			poller.OnAttempt = func(attempt int, st *paymentclient.StatusResponse, err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "  attempt %d: %v\n", attempt, err)
					return
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "  attempt %d: %s\n", attempt, st.Status)
			}
			result, err := poller.Poll(cmd.Context(), res.CheckoutRequestID)
			if err != nil {
				return err
			}
			return report(cmd, result)
		},
	}
	cmd.Flags().StringP("phone", "p", "", "M-Pesa phone number (07XXXXXXXX or 2547XXXXXXXX)")
	cmd.Flags().String("plan", "monthly", "Plan id (monthly, annual)")
	cmd.Flags().Bool("no-wait", false, "Return after the push is sent")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func statusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status [checkoutRequestId]",
		Short: "Show the status of a checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(v)
			if err != nil {
				return err
			}
			st, err := client.CheckStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd, st)
			return nil
		},
	}
}

func report(cmd *cobra.Command, res *paymentclient.PollResult) error {
	switch res.State {
	case paymentclient.PollStateSuccess:
		fmt.Fprintln(cmd.OutOrStdout(), "Payment successful.")
		printStatus(cmd, res.Status)
		return nil
	case paymentclient.PollStateFailed:
		desc := "payment failed"
		if res.Status.ResultDescription != nil {
			desc = *res.Status.ResultDescription
		}
		return fmt.Errorf("payment failed: %s", desc)
	default:
		return fmt.Errorf("no confirmation after %d checks; run `payctl status` later", res.Attempts)
	}
}

func printStatus(cmd *cobra.Command, st *paymentclient.StatusResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status:       %s\n", st.Status)
	if st.ResultCode != nil {
		fmt.Fprintf(out, "Result code:  %d\n", *st.ResultCode)
	}
	if st.ResultDescription != nil {
		fmt.Fprintf(out, "Description:  %s\n", *st.ResultDescription)
	}
	if st.TransactionID != nil {
		fmt.Fprintf(out, "Receipt:      %s\n", *st.TransactionID)
	}
	if st.Subscribed {
		tier := ""
		if st.SubscriptionTier != nil {
			tier = *st.SubscriptionTier
		}
		fmt.Fprintf(out, "Subscription: %s", tier)
		if st.SubscriptionEnd != nil {
			fmt.Fprintf(out, " until %s", st.SubscriptionEnd.Format("2006-01-02"))
		}
		fmt.Fprintln(out)
	}
}
