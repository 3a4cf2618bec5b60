package api

import (
	"errors"
	"regexp"
	"strings"
)

// Validator - интерфейс, который могут реализовать DTO
type Validator interface {
	Validate() error
}

// Имя персонажа: 3-16 символов, латиница, цифры, подчеркивание
var actorNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

func (r SelectionRequest) Validate() error {
	if strings.TrimSpace(r.MinecraftUsername) == "" || strings.TrimSpace(r.TwitchUsername) == "" {
		return errors.New("minecraftUsername and twitchUsername are required")
	}
	if !actorNamePattern.MatchString(r.MinecraftUsername) {
		return errors.New("minecraftUsername is not a valid player name")
	}
	return nil
}

func (c ClientCommand) Validate() error {
	switch c.Action {
	case ActionSubscribe, ActionStatus:
		return nil
	case "":
		return errors.New("action is required")
	}
	return errors.New("unknown action: " + c.Action)
}

func (r DebugAttemptRequest) Validate() error {
	switch strings.ToUpper(r.Action) {
	case "START":
		if r.Initiator == "" {
			return errors.New("initiator is required to start an attempt")
		}
	case "END":
		if r.Outcome == "" {
			return errors.New("outcome is required to end an attempt")
		}
	case "PAUSE", "RESUME":
	default:
		return errors.New("unknown attempt action: " + r.Action)
	}
	return nil
}

func (r DebugEventRequest) Validate() error {
	switch strings.ToUpper(r.Type) {
	case "JOIN", "QUIT", "DEATH", "MOVE":
		if r.Player == "" {
			return errors.New("player is required")
		}
	case "DRAGON":
		if r.World == "" {
			return errors.New("world is required")
		}
	default:
		return errors.New("unknown event type: " + r.Type)
	}
	return nil
}
