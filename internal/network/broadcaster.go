package network

import (
	"log"

	"terrainstream/internal/mesh"
	"terrainstream/internal/meshstore"
	"terrainstream/internal/vegetation"
)

// Publisher sends one message to every viewer.
type Publisher interface {
	Broadcast(msgType MessageType, payload any) error
}

// Broadcaster mirrors every store operation to viewers. Broadcast failures
// are logged and never fail the upload or release itself.
type Broadcaster struct {
	store  meshstore.Store
	pub    Publisher
	logger *log.Logger
}

func NewBroadcaster(store meshstore.Store, pub Publisher, logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Broadcaster{store: store, pub: pub, logger: logger}
}

func (b *Broadcaster) UploadMesh(info meshstore.MeshInfo, m *mesh.VertexData) (meshstore.Handle, error) {
	h, err := b.store.UploadMesh(info, m)
	if err != nil {
		return "", err
	}
	msg := NewBlockMesh(string(h), info.Slot, info.LOD, [3]float32(info.Origin), m)
	if err := b.pub.Broadcast(MessageBlockMesh, msg); err != nil {
		b.logger.Printf("broadcast mesh %s: %v", h, err)
	}
	return h, nil
}

func (b *Broadcaster) UploadInstances(info meshstore.InstanceInfo, in *vegetation.Instances) (meshstore.Handle, error) {
	h, err := b.store.UploadInstances(info, in)
	if err != nil {
		return "", err
	}
	msg := NewVegetation(string(h), info.Slot, info.LOD, info.Type, info.Mesh, in)
	if err := b.pub.Broadcast(MessageVegetation, msg); err != nil {
		b.logger.Printf("broadcast vegetation %s: %v", h, err)
	}
	return h, nil
}

func (b *Broadcaster) Release(h meshstore.Handle) error {
	if err := b.store.Release(h); err != nil {
		return err
	}
	if err := b.pub.Broadcast(MessageRelease, Release{Handle: string(h)}); err != nil {
		b.logger.Printf("broadcast release %s: %v", h, err)
	}
	return nil
}
