package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/event"
)

var (
	enqueueWorkoutID  string
	enqueueExerciseID string
	enqueueSetID      string
	enqueueReps       int64
	enqueueWeight     float64
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <event-type>",
	Short: "Record a new event into the local queue",
	Long: "Record a new event of the given type (one of WorkoutStarted, WorkoutEnded, " +
		"WorkoutCancelled, ExerciseAdded, SetCompleted, SetUpdated, SetDeleted) into the " +
		"durable local queue. Missing identifiers are generated.",
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueWorkoutID, "workout", "", "Workout ID (generated if omitted)")
	enqueueCmd.Flags().StringVar(&enqueueExerciseID, "exercise", "", "Exercise ID (generated if omitted)")
	enqueueCmd.Flags().StringVar(&enqueueSetID, "set", "", "Set ID (generated if omitted)")
	enqueueCmd.Flags().Int64Var(&enqueueReps, "reps", 10, "Reps completed")
	enqueueCmd.Flags().Float64Var(&enqueueWeight, "weight", 0, "Weight used")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	typ := event.Type(args[0])
	if !event.KnownTypes[typ] {
		return fmt.Errorf("%w: unknown event type %q", errUsage, typ)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	if enqueueWorkoutID == "" {
		enqueueWorkoutID = uuid.NewString()
	}
	if enqueueExerciseID == "" {
		enqueueExerciseID = uuid.NewString()
	}
	if enqueueSetID == "" {
		enqueueSetID = uuid.NewString()
	}

	payload, err := buildPayload(typ)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := c.Record(ctx, typ, payload); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	fmt.Printf("enqueued %s (workout=%s exercise=%s set=%s)\n", typ, enqueueWorkoutID, enqueueExerciseID, enqueueSetID)
	return nil
}

func buildPayload(typ event.Type) (interface{}, error) {
	now := nowRFC3339()
	switch typ {
	case event.WorkoutStarted:
		return event.WorkoutStartedPayload{WorkoutID: enqueueWorkoutID, StartedAt: now}, nil
	case event.WorkoutEnded:
		return event.WorkoutEndedPayload{WorkoutID: enqueueWorkoutID, EndedAt: now}, nil
	case event.WorkoutCancelled:
		return event.WorkoutCancelledPayload{WorkoutID: enqueueWorkoutID}, nil
	case event.ExerciseAdded:
		return event.ExerciseAddedPayload{WorkoutID: enqueueWorkoutID, ExerciseID: enqueueExerciseID, ExerciseName: "unnamed"}, nil
	case event.SetCompleted:
		return event.SetCompletedPayload{
			WorkoutID: enqueueWorkoutID, ExerciseID: enqueueExerciseID, SetID: enqueueSetID,
			Reps: enqueueReps, Weight: enqueueWeight, CompletedAt: now,
		}, nil
	case event.SetUpdated:
		reps := enqueueReps
		weight := enqueueWeight
		return event.SetUpdatedPayload{SetID: enqueueSetID, Reps: &reps, Weight: &weight}, nil
	case event.SetDeleted:
		return event.SetDeletedPayload{SetID: enqueueSetID}, nil
	default:
		return nil, fmt.Errorf("unhandled event type %q", typ)
	}
}
