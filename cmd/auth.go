package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/clipsync/internal/agent"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// DevicesList prints a user's devices.
func (r *Runner) DevicesList(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Find(cmd.StringArg("user"))
	if err != nil {
		return err
	}

	devices, err := b.svc.Devices.List(user.ID())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(devices, true)
	}

	r.writePlainHeader(fmt.Sprintf("Devices of %s (%d)", user.Email(), len(devices)))
	for _, d := range devices {
		state := "unverified"
		switch {
		case !d.IsActive():
			state = "inactive"
		case d.Verified():
			state = "verified"
		}
		key := "no key"
		if d.APIKey() != "" {
			key = "key"
		}
		r.writePlain("  %-48s  %-20s  %-8s  %-10s  %-6s  seen %s\n",
			d.DeviceID(), shared.Truncate(d.Name(), 20), d.Platform(), state, key, d.LastSeenAt().Local().Format(time.DateTime))
	}
	return nil
}

// DevicesRegistration creates a pending registration for a user.
//
// With --token the token printed by a waiting agent is adopted; otherwise a new token is issued for --prefix.
func (r *Runner) DevicesRegistration(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Find(cmd.StringArg("user"))
	if err != nil {
		return err
	}

	if token := cmd.String("token"); token != "" {
		p, err := b.svc.Registration.Adopt(user.ID(), token)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Registration %s adopted for %s, expires %s\n", p.Token(), user.Email(), p.ExpiresAt().Local().Format(time.TimeOnly))
	}

	prefix := cmd.String("prefix")
	if prefix == "" {
		return fmt.Errorf("%w: either --prefix or --token must be provided", shared.ErrMissingArgument)
	}

	p, err := b.svc.Registration.CreatePending(user.ID(), prefix)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(p, true)
	}
	r.writePlain("%s\n", p.Token())
	r.writePlainln("On the device, run: clipsync devices register --token %s", p.Token())
	return nil
}

// DevicesRegister registers this machine with the server and stores the API key in the config file.
//
// Without --token the agent prints its own token and waits for it to be adopted.
func (r *Runner) DevicesRegister(ctx context.Context, cmd *cli.Command) error {
	id, generated, err := agent.LoadIdentity(r.config.Agent)
	if err != nil {
		return err
	}
	if name := cmd.String("name"); name != "" {
		id.Name = name
	}
	if generated {
		r.config.Agent.DeviceID = id.DeviceID
		r.config.Agent.DeviceName = id.Name
		if err := r.saveConfig(); err != nil {
			return err
		}
		r.logger.Info("generated device id", "device", id.DeviceID)
	}

	client := r.client(cmd.String("session"))
	token := cmd.String("token")

	var result *services.APIKeyResult
	if token != "" || cmd.String("session") != "" {
		result, err = client.Register(ctx, id.Request(token))
	} else {
		token = id.RegistrationToken()
		r.writePlain("Registration token: %s\n", token)
		r.writePlain("Approve it from the server with: clipsync devices registration <user> --token %s\n", token)

		wait, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
		defer cancel()
		result, err = agent.WaitForRegistration(wait, client, id.Request(token), cmd.Duration("interval"), r.logger)
	}
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	return r.storeKey(result)
}

// DevicesComplete exchanges a token for a fresh API key for an already registered device.
func (r *Runner) DevicesComplete(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("token")
	if token == "" {
		return fmt.Errorf("%w: token is required", shared.ErrMissingArgument)
	}

	result, err := r.client("").CompleteRegistration(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to complete registration: %w", err)
	}
	return r.storeKey(result)
}

func (r *Runner) storeKey(result *services.APIKeyResult) error {
	r.config.Agent.APIKey = result.APIKey
	r.config.Agent.DeviceID = result.DeviceID
	if err := r.saveConfig(); err != nil {
		return err
	}

	r.logger.Info("device registered", "device", result.DeviceID, "config", r.configPath)
	return r.writePlain("✓ Device %s registered, API key saved to %s\n", result.DeviceID, r.configPath)
}

// DevicesKey verifies a device and issues it a new API key.
func (r *Runner) DevicesKey(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Find(cmd.StringArg("user"))
	if err != nil {
		return err
	}
	deviceID := cmd.StringArg("device")

	if cmd.Bool("verify") {
		if err := b.svc.Devices.Verify(user.ID(), deviceID); err != nil {
			return err
		}
	}

	result, err := b.svc.Devices.GenerateAPIKey(user.ID(), deviceID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	return r.writePlain("%s\n", result.APIKey)
}

// DevicesRevoke removes a device's API key.
func (r *Runner) DevicesRevoke(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Find(cmd.StringArg("user"))
	if err != nil {
		return err
	}
	deviceID := cmd.StringArg("device")

	if err := b.svc.Devices.RevokeAPIKey(user.ID(), deviceID); err != nil {
		return err
	}
	return r.writePlain("✓ API key revoked for %s\n", deviceID)
}
