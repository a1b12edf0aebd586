package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/envprobe/internal/capture"
	"github.com/roach88/envprobe/internal/harness"
	"github.com/roach88/envprobe/internal/rollout"
)

// rolloutFlags are shared by the commands that run episodes.
type rolloutFlags struct {
	seed     int64
	maxSteps int
	policy   string
}

func (f *rolloutFlags) register(cmd *cobra.Command, seed int64, maxSteps int) {
	cmd.Flags().Int64Var(&f.seed, "seed", seed, "reset seed (episodes use seed, seed+1, ...)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", maxSteps, "step cap per episode")
	cmd.Flags().StringVar(&f.policy, "policy", rollout.PolicyRandom, "action policy (random|zero)")
}

func (f *rolloutFlags) apply(c *harness.Check) {
	seed := f.seed
	c.Seed = &seed
	c.MaxSteps = f.maxSteps
	c.Policy = f.policy
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the environment spec and compare it with the declared contract",
		Long: `Create the environment, print its spec and compare it with the contract
declared by --spec (default: the reference hopper contract).

Examples:
  envprobe info
  envprobe info --spec specs/hopper.cue --env-id HopperBulletEnv-v0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, rootOpts, harness.Check{Name: "info", Type: harness.CheckInfo})
		},
	}
}

// NewEpisodesCommand creates the episodes command.
func NewEpisodesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags    rolloutFlags
		episodes int
		trace    int
	)

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "Run episodes and summarize lengths and rewards",
		Long: `Run seeded episodes with a random or zero policy and report how each
ended, with mean, min, max and standard deviation of lengths and rewards.

Examples:
  envprobe episodes
  envprobe episodes --episodes 20 --seed 100 --max-steps 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := harness.Check{Name: "episodes", Type: harness.CheckEpisodes, Episodes: episodes, TraceLimit: trace}
			flags.apply(&c)
			return runSingle(cmd, rootOpts, c)
		},
	}

	flags.register(cmd, 0, rollout.DefaultMaxSteps)
	cmd.Flags().IntVarP(&episodes, "episodes", "n", harness.DefaultEpisodes, "number of episodes")
	cmd.Flags().IntVar(&trace, "trace", harness.DefaultTraceSteps, "leading steps of each episode listed in the report")
	return cmd
}

// NewRewardsCommand creates the rewards command.
func NewRewardsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags     rolloutFlags
		tolerance float64
	)

	cmd := &cobra.Command{
		Use:   "rewards",
		Short: "Check that reward components add up to the reward",
		Long: `Run one episode on the reward-decomposing variant and check that the
components of every step sum to its scalar reward.

Reports not available when the environment does not decompose rewards.

Examples:
  envprobe rewards
  envprobe rewards --tolerance 1e-9`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := harness.Check{Name: "reward_components", Type: harness.CheckRewardComponents, Tolerance: tolerance}
			flags.apply(&c)
			return runSingle(cmd, rootOpts, c)
		},
	}

	flags.register(cmd, 0, rollout.DefaultMaxSteps)
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-6, "allowed difference between reward and component sum")
	return cmd
}

// NewObservationsCommand creates the observations command.
func NewObservationsCommand(rootOpts *RootOptions) *cobra.Command {
	var flags rolloutFlags

	cmd := &cobra.Command{
		Use:   "observations",
		Short: "Check observations against the declared schema",
		Long: `Run one episode and check every observation for the declared length and
finite values. Prints the observed range of each labeled coordinate.

Examples:
  envprobe observations
  envprobe observations --seed 3 --policy zero`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := harness.Check{Name: "observations", Type: harness.CheckObservations}
			flags.apply(&c)
			return runSingle(cmd, rootOpts, c)
		},
	}

	flags.register(cmd, 0, rollout.DefaultMaxSteps)
	return cmd
}

// NewZeroActionCommand creates the zero-action command.
func NewZeroActionCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		seed     int64
		maxSteps int
		expect   bool
	)

	cmd := &cobra.Command{
		Use:   "zero-action",
		Short: "Check that a zero action sequence ends the episode",
		Long: `Apply the zero action from a seeded reset and check that the episode
terminates before --max-steps. An unactuated hopper falls over.

Examples:
  envprobe zero-action
  envprobe zero-action --seed 7 --max-steps 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := seed
			e := expect
			return runSingle(cmd, rootOpts, harness.Check{
				Name:             "zero_action",
				Type:             harness.CheckZeroAction,
				Seed:             &s,
				MaxSteps:         maxSteps,
				ExpectTerminated: &e,
			})
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", harness.DefaultZeroActionSeed, "reset seed")
	cmd.Flags().IntVar(&maxSteps, "max-steps", harness.DefaultZeroActionSteps, "step cap")
	cmd.Flags().BoolVar(&expect, "expect-terminated", true, "require termination before --max-steps")
	return cmd
}

// NewFunctionalCommand creates the functional command.
func NewFunctionalCommand(rootOpts *RootOptions) *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "functional",
		Short: "Smoke-test create, reset, step, a 100-step loop and close",
		Long: `Exercise the basic handle lifecycle. Each stage is reported separately;
stages after a failure are reported as not available. The handle is
closed regardless and the close outcome is always reported.

Examples:
  envprobe functional`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := seed
			return runSingle(cmd, rootOpts, harness.Check{Name: "functional", Type: harness.CheckFunctional, Seed: &s})
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "reset seed")
	return cmd
}

// NewEnvCheckerCommand creates the env-checker command.
func NewEnvCheckerCommand(rootOpts *RootOptions) *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "env-checker",
		Short: "Check the reset and step contract of one handle",
		Long: `Reset twice with the same seed and require identical observations, check
the reset and step observations against the schema, require a finite step
reward, and step once with an action past the upper bound.

Examples:
  envprobe env-checker
  envprobe env-checker --seed 7 --spec specs/hopper.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := seed
			return runSingle(cmd, rootOpts, harness.Check{Name: "env_checker", Type: harness.CheckEnvChecker, Seed: &s})
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", harness.DefaultEnvCheckerSeed, "seed of the paired resets")
	return cmd
}

// NewParallelCommand creates the parallel command.
func NewParallelCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		workers   int
		rounds    int
		seeds     []int64
		seed      int64
		reference bool
	)

	cmd := &cobra.Command{
		Use:   "parallel",
		Short: "Step independent environments in lockstep and check isolation",
		Long: `Start one worker per environment, reset each with a distinct seed and
step all of them in lockstep rounds. Any worker failure aborts the check
after every environment has been closed.

Examples:
  envprobe parallel
  envprobe parallel --workers 8 --rounds 500
  envprobe parallel --seeds 10,20,30,40 --verify-reference`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := seed
			n := workers
			if len(seeds) > 0 && !cmd.Flags().Changed("workers") {
				n = len(seeds)
			}
			return runSingle(cmd, rootOpts, harness.Check{
				Name:            "parallel",
				Type:            harness.CheckParallel,
				Workers:         n,
				Seeds:           seeds,
				Rounds:          rounds,
				Seed:            &s,
				VerifyReference: reference,
			})
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", harness.DefaultWorkers, "number of environments")
	cmd.Flags().IntVar(&rounds, "rounds", harness.DefaultRounds, "lockstep rounds")
	cmd.Flags().Int64SliceVar(&seeds, "seeds", nil, "reset seed per worker (default 0..workers-1)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "policy seed; worker i samples with seed+i")
	cmd.Flags().BoolVar(&reference, "verify-reference", false, "compare each worker with a standalone environment")
	return cmd
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags    rolloutFlags
		output   string
		duration float64
		fps      int
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record rendered frames of a policy rollout to a GIF",
		Long: `Render exactly duration*fps frames, resetting whenever an episode ends,
and encode them to --output.

The default output path can be set with ENVPROBE_OUTPUT.

Examples:
  envprobe record
  envprobe record --output out/hopper.gif --duration 10 --fps 15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := flags.seed
			return runSingle(cmd, rootOpts, harness.Check{
				Name:     "capture",
				Type:     harness.CheckCapture,
				Seed:     &seed,
				Policy:   flags.policy,
				Duration: duration,
				FPS:      fps,
				Output:   output,
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", envOr(EnvOutput, capture.DefaultOutput), "output GIF path")
	cmd.Flags().Float64Var(&duration, "duration", capture.DefaultDurationSeconds, "seconds of video")
	cmd.Flags().IntVar(&fps, "fps", capture.DefaultFPS, "frames per second")
	cmd.Flags().Int64Var(&flags.seed, "seed", capture.DefaultResetSeed, "first reset seed")
	cmd.Flags().StringVar(&flags.policy, "policy", rollout.PolicyRandom, "action policy (random|zero)")
	return cmd
}
