package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Keeper persists token state to a local file and mirrors it to an
// optional blob store. The file is authoritative; the mirror only
// rehydrates a fresh host.
type Keeper struct {
	path string
	blob BlobStore
	log  zerolog.Logger
}

func NewKeeper(path string, blob BlobStore, logger zerolog.Logger) (*Keeper, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	return &Keeper{
		path: path,
		blob: blob,
		log:  logger.With().Str("component", "tokens").Logger(),
	}, nil
}

// Load returns the persisted state, falling back to the blob mirror
// when the local file is missing. ErrStateNotFound means a fresh login
// is needed.
func (k *Keeper) Load(ctx context.Context) (State, error) {
	local, err := LoadState(k.path)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return State{}, err
	}
	if k.blob == nil {
		return State{}, ErrStateNotFound
	}

	data, err := k.blob.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("load blob: %w", err)
	}
	state, err := DecodeState(data)
	if err != nil {
		return State{}, err
	}
	if err := WriteState(k.path, state); err != nil {
		return State{}, err
	}
	k.log.Info().Msg("token state restored from blob mirror")
	return state, nil
}

// Save writes the state file and mirrors it best-effort.
func (k *Keeper) Save(ctx context.Context, state State) error {
	if err := WriteState(k.path, state); err != nil {
		persistFailure.Inc()
		return err
	}

	if k.blob != nil {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		if err := k.blob.Save(ctx, data); err != nil {
			remotePersistOK.Set(0)
			k.log.Warn().Err(err).Msg("mirror token state")
		} else {
			remotePersistOK.Set(1)
		}
	}
	return nil
}
