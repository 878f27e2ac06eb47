package reconciler

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TopicProvisioner is the Construct-path operation for new Applications:
// it ensures the application's event stream (and a default consumer
// group for integration subscribers) exists before anything else
// depends on it.
type TopicProvisioner struct {
	client      *redis.Client
	topicFor    func(app string) string
	defaultGroup string
}

// NewTopicProvisioner builds the operation; topicFor maps an
// application name to its events topic (eventbus.EventsTopic).
func NewTopicProvisioner(client *redis.Client, topicFor func(app string) string) *TopicProvisioner {
	return &TopicProvisioner{client: client, topicFor: topicFor, defaultGroup: "integration"}
}

func (p *TopicProvisioner) Name() string { return "provision-topic" }

func (p *TopicProvisioner) Run(ctx context.Context, disposition Disposition, res *Resource) Result {
	if disposition != Construct {
		return ContinueResult()
	}
	app := string(res.Key)
	topic := p.topicFor(app)

	err := p.client.XGroupCreateMkStream(ctx, topic, p.defaultGroup, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return RetryResult(0)
	}
	return ContinueResult()
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" ||
		len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP")
}

// DeviceCleaner is the Deconstruct-path operation for Applications:
// when an application is deleted, it cascades deletion of every device
// still registered under it before the application's own finalizer is
// released.
type DeviceCleaner struct {
	lister  DeviceLister
	deleter DeviceDeleter
	log     *zap.Logger
}

// DeviceLister enumerates every device currently registered under app.
type DeviceLister interface {
	ListDeviceNames(ctx context.Context, app string) ([]string, error)
}

// DeviceDeleter removes a single device, the same path a user-initiated
// delete would take.
type DeviceDeleter interface {
	DeleteDevice(ctx context.Context, app, name string) error
}

func NewDeviceCleaner(lister DeviceLister, deleter DeviceDeleter, log *zap.Logger) *DeviceCleaner {
	return &DeviceCleaner{lister: lister, deleter: deleter, log: log}
}

func (c *DeviceCleaner) Name() string { return "cleanup-devices" }

func (c *DeviceCleaner) Run(ctx context.Context, disposition Disposition, res *Resource) Result {
	if disposition != Deconstruct {
		return ContinueResult()
	}
	app := string(res.Key)

	names, err := c.lister.ListDeviceNames(ctx, app)
	if err != nil {
		return RetryResult(0)
	}
	if len(names) == 0 {
		return ContinueResult()
	}

	for _, name := range names {
		if err := c.deleter.DeleteDevice(ctx, app, name); err != nil {
			if c.log != nil {
				c.log.Warn("failed cascading device delete", zap.String("app", app), zap.String("device", name), zap.Error(err))
			}
			return RetryResult(0)
		}
	}
	return RetryResult(0)
}
