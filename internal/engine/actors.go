package engine

import (
	"log/slog"

	"glooo/internal/database"
	"glooo/internal/engine/actors"
	"glooo/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Engine coordinates communication between actors
type Engine struct {
	system      *actor.ActorSystem
	userActor   *actor.PID
	friendActor *actor.PID
	groupActor  *actor.PID
}

// Options tune the spawned actors. The zero value is production ready.
type Options struct {
	// BcryptCost overrides the password hashing cost when non-zero.
	BcryptCost int
}

func NewEngine(system *actor.ActorSystem, store database.Store, metrics *utils.MetricsCollector, logger *slog.Logger, opts Options) *Engine {
	context := system.Root

	userProps := actor.PropsFromProducer(func() actor.Actor {
		a := actors.NewUserActor(store, metrics, logger)
		if opts.BcryptCost != 0 {
			a.WithBcryptCost(opts.BcryptCost)
		}
		return a
	})

	friendProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewFriendActor(store, metrics, logger)
	})

	groupProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewGroupActor(store, metrics, logger)
	})

	return &Engine{
		system:      system,
		userActor:   context.Spawn(userProps),
		friendActor: context.Spawn(friendProps),
		groupActor:  context.Spawn(groupProps),
	}
}

// GetUserActor returns the PID of the user actor
func (e *Engine) GetUserActor() *actor.PID { return e.userActor }

// GetFriendActor returns the PID of the friend actor
func (e *Engine) GetFriendActor() *actor.PID { return e.friendActor }

// GetGroupActor returns the PID of the group actor
func (e *Engine) GetGroupActor() *actor.PID { return e.groupActor }

// Stop stops every actor, letting each finish the message in hand.
func (e *Engine) Stop() {
	for _, pid := range []*actor.PID{e.userActor, e.friendActor, e.groupActor} {
		_ = e.system.Root.StopFuture(pid).Wait()
	}
}
