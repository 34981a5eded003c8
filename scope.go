package dbconnector

import "context"

// WithConnection connects c, hands it to fn and closes it on every exit
// path, including a panic inside fn.
func WithConnection(ctx context.Context, c Connector, fn func(Connector) error) (err error) {
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return err
	}
	defer func() {
		closeErr := c.Close()
		if err == nil && closeErr != nil {
			err = &ConnectionError{Err: closeErr}
		}
	}()
	return fn(c)
}

// Query is the common case of WithConnection: run one query and return its
// rows.
func Query(ctx context.Context, c Connector, query string) ([]Row, error) {
	var rows []Row
	err := WithConnection(ctx, c, func(conn Connector) error {
		var err error
		rows, err = conn.ExecuteQuery(ctx, query)
		return err
	})
	return rows, err
}
