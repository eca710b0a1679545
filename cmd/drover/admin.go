package main

import (
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/config"
	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/store"
	"github.com/fentz26/drover/internal/window"
	"github.com/spf13/cobra"
)

func openStore() (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.New(cfg.DatabasePath)
}

// --- device ---

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage devices",
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <id> <name>",
	Short: "Register a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		dev, err := s.CreateDevice(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("device %s (%s) registered\n", dev.ID, dev.Name)
		return nil
	},
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		devices, err := s.ListDevices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Printf("%s\t%s\tenabled=%v\tconnected=%v\n", d.ID, d.Name, d.Enabled, d.Connected)
		}
		return nil
	},
}

var deviceEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a device for scheduling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDeviceEnabled(args[0], true)
	},
}

var deviceDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Exclude a device from scheduling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDeviceEnabled(args[0], false)
	},
}

func setDeviceEnabled(id string, enabled bool) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetDeviceEnabled(id, enabled); err != nil {
		return err
	}
	fmt.Printf("device %s enabled=%v\n", id, enabled)
	return nil
}

// --- account ---

var (
	accountWindowStart int
	accountWindowEnd   int
	accountTag         string
	accountSettings    string
	accountWarmupDays  int
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <device-id> <username>",
	Short: "Add an account to a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if _, err := models.ParseSettings(accountSettings); err != nil {
			return err
		}

		// Reject window overlaps with the device's existing active accounts
		// at configuration time rather than resolving them by sort order.
		existing, err := s.ListActiveAccountsForDevice(args[0])
		if err != nil {
			return err
		}
		candidate := models.Account{
			Username:    args[1],
			Status:      models.AccountStatusActive,
			WindowStart: accountWindowStart,
			WindowEnd:   accountWindowEnd,
		}
		if err := window.Validate(append(existing, candidate)); err != nil {
			return err
		}

		var warmup *time.Time
		if accountWarmupDays > 0 {
			t := time.Now().UTC().AddDate(0, 0, accountWarmupDays)
			warmup = &t
		}

		acc, err := s.CreateAccount(store.CreateAccountParams{
			DeviceID:    args[0],
			Username:    args[1],
			WindowStart: accountWindowStart,
			WindowEnd:   accountWindowEnd,
			Tag:         accountTag,
			Settings:    accountSettings,
			WarmupUntil: warmup,
		})
		if err != nil {
			return err
		}
		fmt.Printf("account %s (%s) added to device %s\n", acc.ID, acc.Username, acc.DeviceID)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list <device-id>",
	Short: "List a device's accounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		accounts, err := s.ListAccountsForDevice(args[0])
		if err != nil {
			return err
		}
		for _, a := range accounts {
			fmt.Printf("%s\t%s\t%s\twindow=[%d,%d)\ttag=%s\n",
				a.ID, a.Username, a.Status, a.WindowStart, a.WindowEnd, a.Tag)
		}
		return nil
	},
}

// --- job ---

var (
	jobTargetCount int
	jobDailyLimit  int
	jobHourlyLimit int
	jobPriority    int
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage bulk jobs",
}

var jobAddCmd = &cobra.Command{
	Use:   "add <kind> <target>",
	Short: "Create a job definition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		job, err := s.CreateJob(store.CreateJobParams{
			Kind:        models.ActionKind(args[0]),
			Target:      args[1],
			TargetCount: jobTargetCount,
			DailyLimit:  jobDailyLimit,
			HourlyLimit: jobHourlyLimit,
			Priority:    jobPriority,
		})
		if err != nil {
			return err
		}
		fmt.Printf("job %s created\n", job.ID)
		return nil
	},
}

var jobAssignCmd = &cobra.Command{
	Use:   "assign <job-id> <account-id>",
	Short: "Assign a job to an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		as, err := s.AssignJob(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("assignment %s created\n", as.ID)
		return nil
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		jobs, err := s.ListJobs("")
		if err != nil {
			return err
		}
		for _, j := range jobs {
			fmt.Printf("%s\t%s\t%s\tprio=%d\t%d/%d\t%s\n",
				j.ID, j.Kind, j.Target, j.Priority, j.CompletedCount, j.TargetCount, j.Status)
		}
		return nil
	},
}

func init() {
	deviceCmd.AddCommand(deviceAddCmd, deviceListCmd, deviceEnableCmd, deviceDisableCmd)

	accountAddCmd.Flags().IntVar(&accountWindowStart, "window-start", 0, "window start hour (0-23)")
	accountAddCmd.Flags().IntVar(&accountWindowEnd, "window-end", 0, "window end hour (0-23)")
	accountAddCmd.Flags().StringVar(&accountTag, "tag", "", "cross-account dedup tag")
	accountAddCmd.Flags().StringVar(&accountSettings, "settings", "", "settings JSON blob")
	accountAddCmd.Flags().IntVar(&accountWarmupDays, "warmup-days", 0, "days of warmup before full action set")
	accountCmd.AddCommand(accountAddCmd, accountListCmd)

	jobAddCmd.Flags().IntVar(&jobTargetCount, "target-count", 0, "total completions across accounts (0 = unbounded)")
	jobAddCmd.Flags().IntVar(&jobDailyLimit, "daily-limit", 0, "per-account daily completions (0 = unbounded)")
	jobAddCmd.Flags().IntVar(&jobHourlyLimit, "hourly-limit", 0, "per-account hourly completions (0 = unbounded)")
	jobAddCmd.Flags().IntVar(&jobPriority, "priority", 0, "scheduling priority (higher first)")
	jobCmd.AddCommand(jobAddCmd, jobAssignCmd, jobListCmd)
}
